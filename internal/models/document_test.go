package models

import "testing"

func TestChunk_EnsureFilename(t *testing.T) {
	t.Run("fills blank filename from fallback", func(t *testing.T) {
		c := Chunk{}
		c.EnsureFilename("report.pdf")
		if c.DocumentFilename != "report.pdf" {
			t.Errorf("DocumentFilename = %q, want report.pdf", c.DocumentFilename)
		}
	})

	t.Run("leaves existing filename untouched", func(t *testing.T) {
		c := Chunk{DocumentFilename: "already-set.pdf"}
		c.EnsureFilename("report.pdf")
		if c.DocumentFilename != "already-set.pdf" {
			t.Errorf("DocumentFilename = %q, want already-set.pdf", c.DocumentFilename)
		}
	})
}
