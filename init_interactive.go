package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/binsquare/keyscrub/scrub"
	"gopkg.in/yaml.v3"
)

type initOptions struct {
	out     string
	fromEnv string
	in      io.Reader
	stdout  io.Writer
	// readSecret reads a value without echoing it.
	readSecret func(label string) (string, error)
}

func placeholderFor(env string) string {
	return fmt.Sprintf(`process.env.%s || ""`, env)
}

func runInteractiveInit(opts initOptions) error {
	reader := bufio.NewReader(opts.in)
	w := opts.stdout

	target := prompt(reader, w, "File to scrub (relative to the repository root)", scrub.DefaultConfig().TargetPath)
	rf := RulesFile{Config: scrub.Config{TargetPath: target}}

	if opts.fromEnv != "" {
		entries, err := parseDotEnv(opts.fromEnv)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Value == "" {
				continue
			}
			rf.Rules = append(rf.Rules, scrub.Rule{
				Secret:      e.Value,
				Replacement: placeholderFor(e.Key),
				Env:         e.Key,
			})
		}
		fmt.Fprintf(w, "Loaded %d secrets from %s\n", len(rf.Rules), opts.fromEnv)
	} else {
		for {
			env := prompt(reader, w, "Environment variable name (blank to finish)", "")
			if env == "" {
				break
			}
			secret, err := opts.readSecret(fmt.Sprintf("Leaked value of %s: ", env))
			if err != nil {
				return err
			}
			replacement := prompt(reader, w, "Replacement expression", placeholderFor(env))
			rf.Rules = append(rf.Rules, scrub.Rule{Secret: secret, Replacement: replacement, Env: env})
		}
	}
	if err := rf.Validate(); err != nil {
		return err
	}

	if backend := prompt(reader, w, "Backend to migrate secrets into (blank to skip)", ""); backend != "" {
		rf.Destination.Backend = backend
		rf.Destination.PathPrefix = prompt(reader, w, "Path prefix [example: /project/prod/]", "")
		if rf.Destination.PathPrefix == "" {
			rf.Destination.Prefix = prompt(reader, w, "Prefix (leave blank for none)", "")
		}
	}

	if _, err := os.Stat(opts.out); err == nil {
		resp := prompt(reader, w, fmt.Sprintf("%s exists. Overwrite? (y/N)", opts.out), "N")
		if strings.ToLower(resp) != "y" {
			return fmt.Errorf("aborted; %s already exists", opts.out)
		}
	}
	raw, err := yaml.Marshal(rf)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(opts.out), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(opts.out), err)
	}
	if err := os.WriteFile(opts.out, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", opts.out, err)
	}
	fmt.Fprintf(w, "Wrote %s (%d rules). Keep it out of the repository.\n", opts.out, len(rf.Rules))
	return nil
}

func prompt(r *bufio.Reader, w io.Writer, msg, def string) string {
	if def != "" {
		fmt.Fprintf(w, "%s [%s]: ", msg, def)
	} else {
		fmt.Fprintf(w, "%s: ", msg)
	}
	input, _ := r.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}
