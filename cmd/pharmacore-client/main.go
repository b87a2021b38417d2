// Command pharmacore-client sends one wire protocol request and prints the
// response envelope.
//
//	pharmacore-client -addr localhost:7430 -action LOGIN \
//	    -param username=admin -param password=admin123
package main

import (
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"pharmacore/internal/server"
)

type paramFlags []server.Param

func (p *paramFlags) String() string { return fmt.Sprintf("%v", []server.Param(*p)) }

func (p *paramFlags) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("param must be name=value, got %q", v)
	}
	*p = append(*p, server.Param{Name: name, Value: value})
	return nil
}

func main() {
	addr := flag.String("addr", "localhost:7430", "server address")
	action := flag.String("action", "", "action to invoke")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	var params paramFlags
	flag.Var(&params, "param", "request parameter as name=value (repeatable)")
	flag.Parse()

	if *action == "" {
		fmt.Fprintln(os.Stderr, "missing -action")
		flag.Usage()
		os.Exit(2)
	}

	client, err := server.Dial(*addr, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	resp, err := client.Do(server.Request{Action: *action, Params: params})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	out, err := xml.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(out))
	if !resp.OK() {
		os.Exit(1)
	}
}
