package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envFiles are loaded in order; a variable already set is never overridden.
var envFiles = []string{
	".env",
	".env.local",
}

func loadEnvFiles() {
	files := envFiles
	if extra := os.Getenv("LAUNCHPAD_ENV_FILE"); extra != "" {
		files = append([]string{extra}, files...)
	}

	for _, filename := range files {
		if filename == "" {
			continue
		}

		if _, err := os.Stat(filename); err != nil {
			if !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "warning: unable to read %s: %v\n", filepath.Clean(filename), err)
			}
			continue
		}

		if err := godotenv.Load(filename); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", filename, err)
		}
	}
}
