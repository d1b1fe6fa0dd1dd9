package config_test

import (
	"fmt"

	"github.com/jonwraymond/apmcore/config"
)

func ExampleResolver_Resolve() {
	r := config.NewResolver(config.DefaultSettings())
	_ = r.Describe(`example\.com`, config.WithServiceName("bar"))
	_ = r.Describe(`internal\.`, config.WithDistributedTracing(false))

	for _, host := range []string{"api.example.com", "internal.billing", "other.org"} {
		eff := r.Resolve(host)
		fmt.Printf("%s: service=%s distributed=%v pattern=%q\n",
			host, eff.ServiceName, eff.DistributedTracing, eff.Pattern)
	}
	// Output:
	// api.example.com: service=bar distributed=true pattern="example\\.com"
	// internal.billing: service=http.client distributed=false pattern="internal\\."
	// other.org: service=http.client distributed=true pattern=""
}

func ExampleWithSplitByDomain() {
	r := config.NewResolver(config.DefaultSettings())
	_ = r.Describe(`^payments\.`, config.WithSplitByDomain(true), config.WithServiceName("payments"))
	_ = r.Describe(`\.svc$`, config.WithSplitByDomain(true))

	// Split by domain names the service after the host unless a name is explicit.
	fmt.Println(r.Resolve("orders.svc").ServiceName)
	fmt.Println(r.Resolve("payments.svc").ServiceName)
	// Output:
	// orders.svc
	// payments
}

func ExampleParse() {
	f, err := config.Parse([]byte(`
defaults:
  service_name: outbound
overrides:
  - pattern: 'example\.com'
    service_name: bar
`))
	if err != nil {
		fmt.Println("parse:", err)
		return
	}

	r := config.NewResolver(config.DefaultSettings())
	if err := f.Apply(r); err != nil {
		fmt.Println("apply:", err)
		return
	}

	fmt.Println(r.Resolve("example.com").ServiceName)
	fmt.Println(r.Resolve("example.org").ServiceName)
	// Output:
	// bar
	// outbound
}

func ExampleExpandEnvStrict() {
	out, err := config.ExpandEnvStrict(`pattern: 'example\.com$' literal: $${HOME}`)
	fmt.Println(out)
	fmt.Println("Error:", err)
	// Output:
	// pattern: 'example\.com$' literal: ${HOME}
	// Error: <nil>
}
