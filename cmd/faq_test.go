package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFAQFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	tests := []struct {
		name    string
		file    string
		content string
		wantErr bool
	}{
		{
			name: "yaml",
			file: "faqs.yaml",
			content: `- canonical_question: What are the hostel fees?
  answer: 60,000 per year.
  questions:
    - hostel fees kitna hai
`,
		},
		{
			name:    "json",
			file:    "faqs.json",
			content: `[{"canonical_question":"What are the hostel fees?","answer":"60,000 per year.","questions":["hostel fees kitna hai"]}]`,
		},
		{name: "bad json", file: "bad.json", content: `{`, wantErr: true},
		{name: "unknown extension", file: "faqs.csv", content: "q,a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := readFAQFile(write(tt.file, tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, "What are the hostel fees?", items[0].CanonicalQuestion)
			assert.Equal(t, "60,000 per year.", items[0].Answer)
			assert.Equal(t, []string{"hostel fees kitna hai"}, items[0].Questions)
		})
	}
}
