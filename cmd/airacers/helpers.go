package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/services"
)

var errNoHistory = errors.New("run history requires a database (set DATABASE_URL or DB_HOST)")

// writeJSON writes v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseProvider checks a provider argument against the known providers
func parseProvider(arg string) (models.ProviderID, error) {
	id := models.ProviderID(strings.ToLower(strings.TrimSpace(arg)))
	if !id.IsValid() {
		return "", fmt.Errorf("%w: %s", services.ErrUnknownProvider, arg)
	}
	return id, nil
}
