// Package notify holds the user-facing fallback notices the pipeline sends
// when a message is throttled or a tenant's daily budget runs out. Texts are
// selected per tenant locale with BCP 47 matching; unknown locales fall back
// to English.
package notify

import "golang.org/x/text/language"

var supported = []language.Tag{
	language.English, // first entry is the fallback
	language.Greek,
	language.German,
}

var matcher = language.NewMatcher(supported)

var throttled = map[language.Tag]string{
	language.English: "You're sending messages a bit too quickly. Please wait a moment and try again.",
	language.Greek:   "Στέλνετε μηνύματα λίγο πολύ γρήγορα. Περιμένετε λίγο και δοκιμάστε ξανά.",
	language.German:  "Sie senden Nachrichten etwas zu schnell. Bitte warten Sie einen Moment und versuchen Sie es erneut.",
}

var quotaExceeded = map[language.Tag]string{
	language.English: "This assistant has reached its daily message limit. Please try again tomorrow.",
	language.Greek:   "Ο βοηθός έφτασε το ημερήσιο όριο μηνυμάτων. Δοκιμάστε ξανά αύριο.",
	language.German:  "Dieser Assistent hat sein tägliches Nachrichtenlimit erreicht. Bitte versuchen Sie es morgen erneut.",
}

// match resolves a locale string to one of the supported tags.
func match(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	_, idx, _ := matcher.Match(tag)
	return supported[idx]
}

// Throttled returns the rate-limit notice in the closest supported language.
func Throttled(locale string) string {
	return throttled[match(locale)]
}

// QuotaExceeded returns the daily-budget notice in the closest supported
// language.
func QuotaExceeded(locale string) string {
	return quotaExceeded[match(locale)]
}
