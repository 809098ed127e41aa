// cmd/tools/prompt-registry/main.go

// Inspects the built-in prompt registry and validates overlay files
// before deployment:
//
//	prompt-registry list
//	prompt-registry show -name extraction [-version 1.0.0]
//	prompt-registry validate -overlay ./prompts.json
package main

import (
	"flag"
	"fmt"
	"os"

	"nuance-pipeline/pkg/registry"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "list":
		runList()
	case "show":
		runShow(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: prompt-registry <list|show|validate> [flags]")
}

func runList() {
	reg := registry.New()
	for _, name := range reg.ListPrompts() {
		t, err := reg.Resolve(name, "")
		if err != nil {
			continue
		}
		fmt.Printf("%-12s active=%s versions=%v\n", name, t.Version, reg.ListVersions(name))
	}
}

func runShow(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	name := fs.String("name", "", "prompt name")
	version := fs.String("version", "", "specific version (default: active)")
	overlay := fs.String("overlay", "", "optional overlay file to merge first")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "show: -name is required")
		os.Exit(2)
	}

	reg := registry.New()
	if *overlay != "" {
		if err := reg.LoadOverlay(*overlay); err != nil {
			fmt.Fprintf(os.Stderr, "overlay load failed: %v\n", err)
			os.Exit(1)
		}
	}

	t, err := reg.Resolve(*name, *version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("name:    %s\nversion: %s\nactive:  %v\n", t.Name, t.Version, t.Active)
	if len(t.Metadata) > 0 {
		fmt.Printf("meta:    %v\n", t.Metadata)
	}
	fmt.Printf("\n%s\n", t.Content)
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	overlay := fs.String("overlay", "", "overlay file to validate")
	fs.Parse(args)

	if *overlay == "" {
		fmt.Fprintln(os.Stderr, "validate: -overlay is required")
		os.Exit(2)
	}

	reg := registry.New()
	before := len(reg.ListPrompts())
	if err := reg.LoadOverlay(*overlay); err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}
	after := len(reg.ListPrompts())

	fmt.Printf("OK: overlay applied cleanly (%d prompts active, %d before)\n", after, before)
	for _, name := range reg.ListPrompts() {
		t, err := reg.Resolve(name, "")
		if err != nil {
			continue
		}
		fmt.Printf("  %-12s -> %s\n", name, t.Version)
	}
}
