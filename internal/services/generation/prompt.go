package generation

import (
	"fmt"
	"strings"

	"github.com/ternarybob/nomad/internal/models"
)

const systemPrompt = `You are a friendly and helpful assistant. You can analyze file contents and answer the user's questions.

You have access to a knowledge base of documents uploaded by users. When answering questions, use information from this knowledge base when it is relevant.

INSTRUCTIONS: Analyze the file contents carefully and answer the user's questions using the retrieved information. Aim for complete, informative answers grounded in the file data.
`

const contextInstruction = "\n\nIMPORTANT: Use the information above to answer the user's question. When the information is relevant, cite the sources in your answer using the bracketed numbers, for example [1].\n\n"

const reminder = "REMINDER: Give an informative and accurate answer to the user's question based on the uploaded file contents. NEVER invent data that is not in the files.\n\n"

const (
	attachmentSampleRows = 20
	attachmentInlineMax  = 5000
	attachmentTruncateAt = 3000
)

// lastUserContent returns the content of the most recent user message
func lastUserContent(messages []models.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// formatHistory renders the conversation as labeled turns
func formatHistory(messages []models.ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			parts = append(parts, "User: "+msg.Content)
		case models.RoleAssistant:
			parts = append(parts, "Assistant: "+msg.Content)
		case models.RoleSystem:
			parts = append(parts, "System message: "+msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// formatSize renders a byte count for the attachment header
func formatSize(size int) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1048576:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/1048576)
	}
}

// formatAttachments builds the uploaded-files block. CSV attachments get a
// shape summary plus the leading rows; small text attachments are inlined
// with truncation.
func formatAttachments(attachments []models.Attachment) string {
	if len(attachments) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("### UPLOADED FILES ###\n")

	for _, file := range attachments {
		fileType := file.Type
		if fileType == "" {
			fileType = "unknown type"
		}
		fmt.Fprintf(&b, "File: %s (%s, %s)\n", file.Name, fileType, formatSize(file.Size))

		isCSV := file.Type == "text/csv" || strings.HasSuffix(strings.ToLower(file.Name), ".csv")
		switch {
		case isCSV && file.Content != "":
			lines := strings.Split(file.Content, "\n")
			firstLine := ""
			if len(lines) > 0 {
				firstLine = lines[0]
			}
			columnCount := len(strings.Split(firstLine, ","))

			fmt.Fprintf(&b, "CSV file: %d rows, %d columns\n", len(lines), columnCount)
			fmt.Fprintf(&b, "Headers: %s\n\n", firstLine)

			b.WriteString("CSV file content (leading rows):\n")
			show := attachmentSampleRows
			if len(lines) < show {
				show = len(lines)
			}
			for i := 0; i < show; i++ {
				b.WriteString(lines[i])
				b.WriteString("\n")
			}
			if len(lines) > show {
				fmt.Fprintf(&b, "... (%d more rows)\n", len(lines)-show)
			}
			b.WriteString("\n")

		case file.Content != "" && len(file.Content) < attachmentInlineMax:
			b.WriteString("File content:\n")
			if len(file.Content) > attachmentTruncateAt {
				b.WriteString(file.Content[:attachmentTruncateAt])
				b.WriteString("\n... (content truncated for brevity)\n")
			} else {
				b.WriteString(file.Content)
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("### END OF FILE LIST ###\n\n")
	return b.String()
}

// buildPrompt assembles the full prompt: system instructions, retrieval
// context, attachment block, history, reminder, and the final question.
func buildPrompt(messages []models.ChatMessage, attachments []models.Attachment, retrieval *models.RetrievalContext) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")

	if retrieval != nil && retrieval.HasContext {
		b.WriteString(retrieval.ContextText)
		b.WriteString(contextInstruction)
		b.WriteString("\n\n")
	}

	if block := formatAttachments(attachments); block != "" {
		b.WriteString(block)
		b.WriteString("\n\n")
	}

	b.WriteString(formatHistory(messages))
	b.WriteString("\n\n")
	b.WriteString(reminder)

	if question := lastUserContent(messages); question != "" {
		fmt.Fprintf(&b, "User question: %q\n\n", question)
	}

	b.WriteString("Assistant: ")
	return b.String()
}
