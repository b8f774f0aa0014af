package convo

import "fmt"

// Fixed per-language UX lines. These are deliberately not generated: a
// reminder or rejection must cost nothing and can never be garbled.

var notStartedPrompts = map[string]string{
	"ru": "Сначала отправь /start, чтобы начать беседу.",
	"en": "Send /start first to begin the conversation.",
}

var languageReminders = map[string]string{
	"ru": "Мы же договорились общаться по-русски 🙂 Напиши мне по-русски, пожалуйста.",
	"en": "We agreed to chat in English 🙂 Please write to me in English.",
}

var languagePrompts = map[string]string{
	"ru": "Если хочешь перейти на другой язык, отправь /language en.",
	"en": "If you'd like to switch languages, send /language ru.",
}

var resetConfirmations = map[string]string{
	"ru": "Хорошо, начнём с чистого листа. Отправь /start, чтобы начать заново.",
	"en": "Alright, clean slate. Send /start to begin again.",
}

var listeningPrompts = map[string]string{
	"ru": "Я слушаю. Расскажи мне что-нибудь.",
	"en": "I'm listening. Tell me something.",
}

func greeting(language, name string) string {
	switch language {
	case "ru":
		return fmt.Sprintf("Привет! Я %s. Расскажи мне, как прошёл твой день?", name)
	default:
		return fmt.Sprintf("Hi! I'm %s. Tell me, how was your day?", name)
	}
}

func characterConfirmation(language, name string) string {
	switch language {
	case "ru":
		return fmt.Sprintf("Теперь с тобой говорит %s.", name)
	default:
		return fmt.Sprintf("You are now talking to %s.", name)
	}
}

func languageConfirmation(language string) string {
	switch language {
	case "ru":
		return "Хорошо, продолжаем по-русски."
	default:
		return "Okay, let's continue in English."
	}
}

func fixedLine(table map[string]string, language string) string {
	if s, ok := table[language]; ok {
		return s
	}
	return table["en"]
}
