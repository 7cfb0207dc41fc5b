// Command resolve runs a single iterative resolution and prints the
// CNAME chain it followed, the final answer, and how many queries it
// took.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/resolver"
	"github.com/nsroot/nsroot/internal/rr"
)

const resolveTimeout = 30 * time.Second

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: resolve name type")
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2]); err != nil {
		fmt.Fprintln(os.Stderr, "resolve:", err)
		os.Exit(1)
	}
}

func run(name, typeStr string) error {
	qname, err := dnsname.Parse(name)
	if err != nil {
		return fmt.Errorf("name: %w", err)
	}
	qtype, ok := dnsenum.TypeByName(strings.ToUpper(typeStr))
	if !ok {
		return fmt.Errorf("unknown record type %q", typeStr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	r := resolver.New(nil)
	res, resErr := r.Resolve(ctx, qname, qtype)

	if len(res.Chain) > 0 {
		chain := make([]string, 0, len(res.Chain)+1)
		chain = append(chain, qname.String())
		for _, c := range res.Chain {
			chain = append(chain, c.String())
		}
		fmt.Println(strings.Join(chain, " -> "))
	}

	switch {
	case resErr == nil:
		if len(res.Answers) == 0 {
			fmt.Println(";; NODATA")
		}
		for _, a := range res.Answers {
			tokens := rr.FormatText(a.RR)
			fmt.Printf("%s\t%d\t%s\t%s\n", a.Owner, a.TTL, a.RR.Type(), strings.Join(tokens, " "))
		}
	case errors.Is(resErr, resolver.ErrNXDomain):
		fmt.Println(";; NXDOMAIN")
	case errors.Is(resErr, resolver.ErrTooManyQueries):
		fmt.Println(";; SERVFAIL (query budget exceeded)")
	default:
		fmt.Printf(";; SERVFAIL (%v)\n", resErr)
	}

	fmt.Printf(";; queries: %d\n", res.QueriesSpent)
	return nil
}
