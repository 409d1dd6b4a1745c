package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/unigate/backend/internal/quicutil"
)

const (
	certFile = "cert.pem"
	keyFile  = "key.pem"
)

var (
	// Global flags
	outputDir string
	hosts     string
	force     bool
	toStdout  bool
	certPath  string
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "generate":
		generateCmd(args)
	case "show":
		showCmd(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("certgen - unigate TLS identity tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  certgen generate [flags]  - Generate a self-signed certificate and key")
	fmt.Println("  certgen show [flags]      - Display certificate information")
	fmt.Println()
	fmt.Println("Run 'certgen <command> -h' for command-specific help")
}

func generateCmd(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	fs.StringVar(&outputDir, "output-dir", ".", "Directory for cert.pem and key.pem")
	fs.StringVar(&hosts, "hosts", "", "Comma-separated extra DNS names or IPs")
	fs.BoolVar(&force, "force", false, "Overwrite existing files, or print the key to a terminal")
	fs.BoolVar(&toStdout, "stdout", false, "Print the PEM blocks instead of writing files")
	_ = fs.Parse(args)

	var extra []string
	for _, h := range strings.Split(hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			extra = append(extra, h)
		}
	}

	id, err := quicutil.SelfSignedIdentity(extra...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate certificate: %v\n", err)
		os.Exit(1)
	}

	if toStdout {
		if term.IsTerminal(int(os.Stdout.Fd())) && !force {
			fmt.Fprintln(os.Stderr, "Refusing to print a private key to a terminal; redirect stdout or pass --force")
			os.Exit(1)
		}
		os.Stdout.Write(id.CertPEM)
		os.Stdout.Write(id.KeyPEM)
		return
	}

	if err := os.MkdirAll(outputDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	cert := filepath.Join(outputDir, certFile)
	key := filepath.Join(outputDir, keyFile)
	if !force {
		for _, p := range []string{cert, key} {
			if _, err := os.Stat(p); err == nil {
				fmt.Fprintf(os.Stderr, "%s already exists; pass --force to overwrite\n", p)
				os.Exit(1)
			}
		}
	}

	if err := os.WriteFile(cert, id.CertPEM, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save certificate: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(key, id.KeyPEM, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save private key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Certificate generated successfully!")
	fmt.Println()
	printCert(id.CertPEM)
	fmt.Println()
	fmt.Println("Files:")
	fmt.Printf("  %s\n", cert)
	fmt.Printf("  %s\n", key)
	fmt.Println()
	fmt.Println("WARNING: self-signed certificates are for development only")
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	fs.StringVar(&certPath, "cert", certFile, "Certificate file")
	_ = fs.Parse(args)

	data, err := os.ReadFile(certPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read certificate: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'certgen generate' first to create one")
		os.Exit(1)
	}
	printCert(data)
}

func printCert(certPEM []byte) {
	cert, sum, err := quicutil.Fingerprint(certPEM)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse certificate: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Subject:")
	fmt.Printf("  %s\n", cert.Subject)
	if len(cert.DNSNames) > 0 || len(cert.IPAddresses) > 0 {
		fmt.Println("Hosts:")
		for _, n := range cert.DNSNames {
			fmt.Printf("  %s\n", n)
		}
		for _, ip := range cert.IPAddresses {
			fmt.Printf("  %s\n", ip)
		}
	}
	fmt.Println("Validity:")
	fmt.Printf("  %s - %s\n", cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339))
	fmt.Println("Fingerprint:")
	fmt.Printf("  SHA256:%x\n", sum)
}
