package span

import (
	"bytes"
	"io"
	"net/http"
)

// DefaultBodyLimit bounds how much of a response body is captured for error messages.
const DefaultBodyLimit = 4096

// PeekBody reads up to limit bytes of resp.Body and puts them back so the caller
// still sees the full body.
func PeekBody(resp *http.Response, limit int) string {
	if resp == nil || resp.Body == nil || resp.Body == http.NoBody || limit <= 0 {
		return ""
	}

	// A read error resurfaces to the caller from the replayed body.
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, int64(limit)))
	resp.Body = &replayBody{
		Reader: io.MultiReader(bytes.NewReader(buf), resp.Body),
		closer: resp.Body,
	}
	return string(buf)
}

type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error {
	return b.closer.Close()
}
