package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/turfinme1/webstore-sub000/internal/report"
	"github.com/turfinme1/webstore-sub000/internal/schema"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: webstore-validate <catalog_or_reports_path> [path2] ...")
		fmt.Println("Files named *reports*.yaml are checked as report catalogs, everything else as entity catalogs.")
		os.Exit(1)
	}

	allValid := true
	for _, arg := range os.Args[1:] {
		name := filepath.Base(arg)
		problems, err := check(arg)
		switch {
		case err != nil:
			fmt.Printf("❌ Error validating %s: %v\n", name, err)
			allValid = false
		case len(problems) > 0:
			fmt.Printf("❌ %s is invalid!\n", name)
			for _, p := range problems {
				fmt.Printf("   - %s\n", p)
			}
			allValid = false
		default:
			fmt.Printf("✅ %s is valid.\n", name)
		}
	}

	if !allValid {
		os.Exit(1)
	}
}

func check(path string) ([]string, error) {
	if strings.Contains(strings.ToLower(filepath.Base(path)), "reports") {
		reg, err := report.Load(path)
		if err != nil {
			return []string{err.Error()}, nil
		}
		fmt.Printf("   reports: %s\n", strings.Join(reg.Keys(), ", "))
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, err
	}
	problems, err := schema.ValidateDocument(doc)
	if err != nil || len(problems) > 0 {
		return problems, err
	}
	// schema-valid documents still get identifier and consistency checks
	if _, err := schema.Parse(data, filepath.Ext(path)); err != nil {
		return []string{err.Error()}, nil
	}
	return nil, nil
}
