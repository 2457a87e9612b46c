// Command duplex-client is an interactive client for the duplex transport.
//
// It dials a TLS server, then reads lines from the terminal and sends each
// one over the stream, printing whatever the server sends back. Against the
// default echo handler every line comes straight back.
//
// Usage:
//
//	duplex-client [flags] <address>
//
// Flags:
//
//	-alpn string       Comma-separated ALPN protocol list
//	-ca string         CA certificate PEM file for server verification
//	-insecure          Skip server certificate verification
//	-timeout duration  Connect timeout (default 30s)
//
// Examples:
//
//	# Talk to a dev server with a self-signed certificate
//	duplex-client -insecure localhost:9443
//
//	# Verify the server against a CA bundle
//	duplex-client -ca ca.pem -alpn echo/1 server.example.org:9443
package main

import (
	"context"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/duplex-transport/duplex-go/pkg/cert"
	"github.com/duplex-transport/duplex-go/pkg/transport"
)

func main() {
	var (
		alpn     = flag.String("alpn", "", "Comma-separated ALPN protocol list")
		caFile   = flag.String("ca", "", "CA certificate PEM file for server verification")
		insecure = flag.Bool("insecure", false, "Skip server certificate verification")
		timeout  = flag.Duration("timeout", transport.DefaultConnectTimeout, "Connect timeout")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: duplex-client [flags] <address>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	address := flag.Arg(0)

	var alpnList []string
	if *alpn != "" {
		for _, p := range strings.Split(*alpn, ",") {
			alpnList = append(alpnList, strings.TrimSpace(p))
		}
	}

	if err := run(address, alpnList, *caFile, *insecure, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(address string, alpn []string, caFile string, insecure bool, timeout time.Duration) error {
	tlsConfig, err := clientTLSConfig(alpn, caFile, insecure)
	if err != nil {
		return err
	}

	client, err := transport.NewClient(transport.ClientConfig{
		TLSConfig:      tlsConfig,
		ConnectTimeout: timeout,
	})
	if err != nil {
		return err
	}

	stream, err := client.Connect(context.Background(), address)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer stream.Close()

	fmt.Printf("Connected to %s (conn %s)\n", stream.RemoteAddr(), stream.ConnID())
	if state, ok := stream.TLSState(); ok && state.NegotiatedProtocol != "" {
		fmt.Printf("Negotiated ALPN protocol: %s\n", state.NegotiatedProtocol)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	// Print server data as it arrives, coordinated with the prompt.
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := stream.Read(buf)
			if n > 0 {
				fmt.Fprintf(rl.Stdout(), "< %s", buf[:n])
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					fmt.Fprintln(rl.Stdout(), "Connection closed by server")
				} else {
					fmt.Fprintf(rl.Stderr(), "Read error: %v\n", err)
				}
				rl.Close()
				return
			}
		}
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			// EOF or closed prompt
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		if _, err := stream.Writev(net.Buffers{[]byte(input), []byte("\n")}); err != nil {
			if errors.Is(err, transport.ErrOutputClosed) {
				fmt.Fprintln(rl.Stderr(), "Connection closed")
				return nil
			}
			return fmt.Errorf("write failed: %w", err)
		}
	}
}

// clientTLSConfig builds the TLS settings from the command line. With -ca the
// server certificate must chain to the given bundle; -insecure skips
// verification entirely.
func clientTLSConfig(alpn []string, caFile string, insecure bool) (*transport.ClientTLSConfig, error) {
	if insecure {
		return transport.NewInsecureClientTLSConfig("", alpn), nil
	}

	cfg := &transport.ClientTLSConfig{ALPN: alpn}
	if caFile != "" {
		caCert, err := cert.LoadCertificate(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		pool.AddCert(caCert)
		cfg.RootCAs = pool
	}
	return cfg, nil
}
