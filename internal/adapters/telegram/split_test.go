package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessageRespectsLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString(strings.Repeat("а", 3000))
	b.WriteString("\n\n")
	b.WriteString(strings.Repeat("б", 2000))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("в", 500))

	parts := SplitMessage(b.String())
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, part := range parts {
		if n := len([]rune(part)); n > MessageLimit {
			t.Fatalf("часть %d длиннее лимита: %d", i, n)
		}
	}
	if parts[0] != strings.Repeat("а", 3000) {
		t.Fatalf("неверная первая часть")
	}
	if !strings.HasPrefix(parts[1], "б") || !strings.HasSuffix(parts[1], strings.Repeat("в", 500)) {
		t.Fatalf("неверная вторая часть")
	}
}

func TestSplitWithoutNewlines(t *testing.T) {
	parts := Split(strings.Repeat("x", 25), 10)
	if len(parts) != 3 || parts[0] != strings.Repeat("x", 10) || parts[2] != strings.Repeat("x", 5) {
		t.Fatalf("неверное деление: %q", parts)
	}
}

func TestSplitMessageShortText(t *testing.T) {
	parts := SplitMessage("  привет  ")
	if len(parts) != 1 || parts[0] != "привет" {
		t.Fatalf("неверный результат: %q", parts)
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	if parts := SplitMessage("   \n  "); len(parts) != 0 {
		t.Fatalf("для пустого текста частей быть не должно, получили %d", len(parts))
	}
}
