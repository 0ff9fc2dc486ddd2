package cli

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/iudanet/contactsync/internal/client/storage"
)

// shortID первые символы id; достаточно для команд, принимающих префикс
func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func recordState(r storage.Local) string {
	if r.IsDirty() {
		return "pending"
	}
	return "synced"
}

func (c *Cli) printMeta(created, updated time.Time, dirty bool) {
	c.io.Printf("Created:    %s\n", created.Local().Format(time.RFC3339))
	c.io.Printf("Updated:    %s (%s)\n", updated.Local().Format(time.RFC3339), humanize.Time(updated))
	if dirty {
		c.io.Println("State:      pending sync")
	} else {
		c.io.Println("State:      synced")
	}
}

