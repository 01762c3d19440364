package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lingualive/internal/domain"
)

// Format selects an export layout.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

const (
	defaultSourceLanguage = "en"
	defaultTargetLanguage = "es"

	isoMillis    = "2006-01-02T15:04:05.000Z07:00"
	headerRule   = "============================"
	csvHeaderRow = "Timestamp,Original Text,Translation,Source Language,Target Language,Confidence"
)

// ParseFormat accepts text, txt, json and csv, case-insensitively.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "text", "txt", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// Export is a downloadable transcript file.
type Export struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Export serializes the ledger. An empty ledger still yields a valid file.
func (l *Ledger) Export(format Format) (Export, error) {
	summary, entries, now := l.snapshot()
	day := summary.StartTime
	if day.IsZero() {
		day = now
	}
	base := "transcript_" + day.Format("2006-01-02")

	switch format {
	case FormatText:
		return Export{
			Filename:    base + ".txt",
			ContentType: "text/plain; charset=utf-8",
			Content:     renderText(summary, entries),
		}, nil
	case FormatJSON:
		content, err := renderJSON(summary, entries)
		if err != nil {
			return Export{}, err
		}
		return Export{Filename: base + ".json", ContentType: "application/json", Content: content}, nil
	case FormatCSV:
		return Export{
			Filename:    base + ".csv",
			ContentType: "text/csv; charset=utf-8",
			Content:     renderCSV(entries),
		}, nil
	default:
		return Export{}, fmt.Errorf("unsupported export format %q", format)
	}
}

// Text renders the plain text transcript.
func (l *Ledger) Text() string {
	summary, entries, _ := l.snapshot()
	return string(renderText(summary, entries))
}

func languages(entries []domain.TranscriptEntry) (string, string) {
	if len(entries) == 0 {
		return defaultSourceLanguage, defaultTargetLanguage
	}
	return entries[0].SourceLanguage, entries[0].TargetLanguage
}

func renderText(summary domain.Summary, entries []domain.TranscriptEntry) []byte {
	source, target := languages(entries)

	var b bytes.Buffer
	fmt.Fprintf(&b, "LinguaLive Session Transcript\n%s\n\n", headerRule)
	fmt.Fprintf(&b, "Start Time: %s\n", displayTime(summary.StartTime))
	fmt.Fprintf(&b, "End Time: %s\n", displayTime(summary.EndTime))
	fmt.Fprintf(&b, "Duration: %s\n", FormatDuration(summary.DurationSeconds))
	fmt.Fprintf(&b, "Total Words: %d\n", summary.WordCount)
	fmt.Fprintf(&b, "Total Entries: %d\n", summary.EntryCount)
	fmt.Fprintf(&b, "Source Language: %s\n", source)
	fmt.Fprintf(&b, "Target Language: %s\n", target)
	fmt.Fprintf(&b, "\n%s\n\n", headerRule)

	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. [%s]\n", i+1, entry.Timestamp.Format("15:04:05"))
		fmt.Fprintf(&b, "   Original (%s): %s\n", entry.SourceLanguage, entry.OriginalText)
		fmt.Fprintf(&b, "   Translation (%s): %s\n", entry.TargetLanguage, entry.TranslatedText)
		if entry.Confidence != nil {
			fmt.Fprintf(&b, "   Confidence: %s%%\n", percent(*entry.Confidence))
		}
		b.WriteString("\n")
	}
	return b.Bytes()
}

type jsonSessionInfo struct {
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	Duration       int    `json:"duration"`
	WordCount      int    `json:"wordCount"`
	EntryCount     int    `json:"entryCount"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

type jsonEntry struct {
	ID               string   `json:"id"`
	Timestamp        string   `json:"timestamp"`
	OriginalText     string   `json:"originalText"`
	TranslatedText   string   `json:"translatedText"`
	SourceLanguage   string   `json:"sourceLanguage"`
	TargetLanguage   string   `json:"targetLanguage"`
	Confidence       *float64 `json:"confidence,omitempty"`
	TranslationError string   `json:"translationError,omitempty"`
}

type jsonTranscript struct {
	SessionInfo jsonSessionInfo `json:"sessionInfo"`
	Entries     []jsonEntry     `json:"entries"`
}

func renderJSON(summary domain.Summary, entries []domain.TranscriptEntry) ([]byte, error) {
	source, target := languages(entries)
	doc := jsonTranscript{
		SessionInfo: jsonSessionInfo{
			StartTime:      isoTime(summary.StartTime),
			EndTime:        isoTime(summary.EndTime),
			Duration:       summary.DurationSeconds,
			WordCount:      summary.WordCount,
			EntryCount:     summary.EntryCount,
			SourceLanguage: source,
			TargetLanguage: target,
		},
		Entries: make([]jsonEntry, 0, len(entries)),
	}
	for _, entry := range entries {
		doc.Entries = append(doc.Entries, jsonEntry{
			ID:               entry.ID,
			Timestamp:        isoTime(entry.Timestamp),
			OriginalText:     entry.OriginalText,
			TranslatedText:   entry.TranslatedText,
			SourceLanguage:   entry.SourceLanguage,
			TargetLanguage:   entry.TargetLanguage,
			Confidence:       entry.Confidence,
			TranslationError: entry.TranslationError,
		})
	}

	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode transcript json: %w", err)
	}
	return append(content, '\n'), nil
}

// renderCSV always quotes the two text columns, which encoding/csv only
// does when a field needs it.
func renderCSV(entries []domain.TranscriptEntry) []byte {
	var b bytes.Buffer
	b.WriteString(csvHeaderRow)
	b.WriteString("\n")
	for _, entry := range entries {
		confidence := ""
		if entry.Confidence != nil {
			confidence = percent(*entry.Confidence)
		}
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s,%s\n",
			isoTime(entry.Timestamp),
			quoteCSV(entry.OriginalText),
			quoteCSV(entry.TranslatedText),
			entry.SourceLanguage,
			entry.TargetLanguage,
			confidence,
		)
	}
	return b.Bytes()
}

func quoteCSV(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func percent(confidence float64) string {
	return fmt.Sprintf("%.1f", confidence*100)
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(isoMillis)
}

func displayTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

// FormatDuration renders seconds as "1h 2m 3s", dropping leading zero units.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
