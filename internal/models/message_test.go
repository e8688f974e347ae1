package models

import (
	"strings"
	"testing"
)

func TestAttachmentTypeFor(t *testing.T) {
	cases := []struct {
		name       string
		attachment Attachment
		want       MessageType
	}{
		{"no attachment", Attachment{}, TextMessage},
		{"jpeg", Attachment{Name: "a.jpg", MimeType: "image/jpeg"}, ImageMessage},
		{"png", Attachment{Name: "b.png", MimeType: "image/png"}, ImageMessage},
		{"pdf", Attachment{Name: "c.pdf", MimeType: "application/pdf"}, FileMessage},
		{"unknown mime", Attachment{Name: "d.bin", MimeType: "application/octet-stream"}, FileMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.attachment.TypeFor(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAttachmentPresent(t *testing.T) {
	if (Attachment{}).Present() {
		t.Error("empty attachment should not be present")
	}
	if !(Attachment{Name: "a.jpg"}).Present() {
		t.Error("named attachment should be present")
	}
}

func TestMessageSnippet(t *testing.T) {
	t.Run("short content unchanged", func(t *testing.T) {
		m := &Message{Content: "hello"}
		if got := m.Snippet(80); got != "hello" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("long content truncated with ellipsis", func(t *testing.T) {
		m := &Message{Content: strings.Repeat("x", 100)}
		got := m.Snippet(10)
		if got != strings.Repeat("x", 10)+"..." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("image attachment placeholder", func(t *testing.T) {
		m := &Message{Type: ImageMessage, Attachment: Attachment{Name: "photo.jpg", URL: "/uploads/x.jpg"}}
		got := m.Snippet(80)
		if got != "[Image: photo.jpg]" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("file attachment placeholder", func(t *testing.T) {
		m := &Message{Type: FileMessage, Attachment: Attachment{Name: "lease.pdf", URL: "/uploads/y.pdf"}}
		got := m.Snippet(80)
		if got != "[File: lease.pdf]" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("multibyte content not split mid-rune", func(t *testing.T) {
		m := &Message{Content: strings.Repeat("é", 20)}
		got := m.Snippet(5)
		if got != strings.Repeat("é", 5)+"..." {
			t.Errorf("got %q", got)
		}
	})
}
