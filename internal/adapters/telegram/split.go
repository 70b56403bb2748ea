package telegram

import "strings"

// MessageLimit: максимальная длина сообщения Telegram в символах.
const MessageLimit = 4096

// SplitMessage делит текст на части по MessageLimit.
func SplitMessage(text string) []string {
	return Split(text, MessageLimit)
}

// Split делит текст на части не длиннее limit рун. Разрез делается по последнему
// переводу строки в окне, чтобы блоки товара не разрывались посередине.
func Split(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 {
		limit = MessageLimit
	}
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	add := func(chunk []rune) {
		if s := strings.Trim(string(chunk), "\n"); s != "" {
			parts = append(parts, s)
		}
	}
	for len(runes) > 0 {
		if len(runes) <= limit {
			add(runes)
			break
		}
		cut := lastNewline(runes[:limit])
		if cut <= 0 {
			cut = limit
		}
		add(runes[:cut])
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	return parts
}

func lastNewline(window []rune) int {
	for i := len(window); i > 0; i-- {
		if window[i-1] == '\n' {
			return i
		}
	}
	return -1
}
