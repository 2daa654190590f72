// biosearch is a hybrid retrieval and question-answering engine for
// biomedical literature and clinical-trial records.
package main

import (
	"os"

	"github.com/openbiomed/biosearch/cmd/biosearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
