// Command incoming-queue scans one or more rule-named incoming directories,
// verifies and installs every signed upload manifest it finds, and prints a
// one-line JSON event per thing that happened.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/archivekeep/incoming-queue/archive"
	"github.com/archivekeep/incoming-queue/config"
	"github.com/archivekeep/incoming-queue/incoming"
	"github.com/archivekeep/incoming-queue/logger"
	"github.com/archivekeep/incoming-queue/sig"
)

type arrayFlags []string

// String implements the flag.Value interface.
func (f *arrayFlags) String() string {
	out := ""
	for i, v := range *f {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

// Set implements the flag.Value interface.
func (f *arrayFlags) Set(value string) error {
	*f = append(*f, value)
	return nil
}

func main() {
	var rulesPath, distsPath, poolDir, keyringPath string
	var rules, changes arrayFlags

	fs := flag.NewFlagSet("incoming-queue", flag.ExitOnError)
	fs.StringVar(&rulesPath, "rules", "", "Path to a rule file (required)")
	fs.StringVar(&distsPath, "distributions", "", "Path to a distribution policy file (required)")
	fs.StringVar(&poolDir, "pool", "", "Path to the archive pool root (required)")
	fs.StringVar(&keyringPath, "keyring", "", "Path to an armored OpenPGP public keyring")
	fs.Var(&rules, "rule", "Name of a rule to run (repeatable; default: all rules in -rules)")
	fs.Var(&changes, "changes", "Name of a single .changes file to process (repeatable; default: every manifest found)")
	fs.Parse(os.Args[1:])

	if rulesPath == "" || distsPath == "" || poolDir == "" {
		log.Fatal("-rules, -distributions and -pool are all required")
	}

	allRules, err := loadRules(rulesPath)
	if err != nil {
		log.Fatalf("loading rules: %v", err)
	}
	dists, err := loadDistributions(distsPath)
	if err != nil {
		log.Fatalf("loading distributions: %v", err)
	}
	keyring, err := loadKeyring(keyringPath)
	if err != nil {
		log.Fatalf("loading keyring: %v", err)
	}

	store, err := archive.NewStore(poolDir)
	if err != nil {
		log.Fatalf("opening pool: %v", err)
	}

	listener := func(e fmt.Stringer) { fmt.Println(e.String()) }

	targets := rules
	if len(targets) == 0 {
		for name := range allRules {
			targets = append(targets, name)
		}
	}

	exitCode := 0
	for _, name := range targets {
		rule, ok := allRules[name]
		if !ok {
			log.Printf("unknown rule %q", name)
			exitCode = 1
			continue
		}
		summary, err := incoming.Process(rule, store, dists, keyring, logger.Listener(listener), changes...)
		if err != nil {
			log.Printf("rule %s: %v", name, err)
			exitCode = 1
			continue
		}
		for _, r := range summary.Results {
			if r.Outcome == incoming.OutcomeError {
				log.Printf("rule %s: %s: %v", name, r.ManifestFile, r.Err)
				exitCode = 1
			}
		}
	}
	os.Exit(exitCode)
}

func loadRules(path string) (map[string]*config.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return config.LoadRules(f)
}

func loadDistributions(path string) (map[string]*config.Distribution, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return config.LoadDistributions(f)
}

func loadKeyring(path string) (openpgp.EntityList, error) {
	if path == "" {
		return nil, nil
	}
	armored, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return sig.ReadKeyring(string(armored))
}
