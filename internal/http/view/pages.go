package view

import (
	"bytes"
	"html/template"

	"github.com/hoplink/hoplink/internal/app/model"
)

// MessagePageData drives the static not-found / denial pages.
type MessagePageData struct {
	Title   string
	Heading string
	Detail  string
}

// PasswordPageData drives the password prompt. SubmitURL points back at
// the identifier so the form POSTs to the resolution endpoint.
type PasswordPageData struct {
	Code      string
	SubmitURL string
	Failed    bool
}

var pageShell = `
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{.Title}}</title>
	<style>
		:root {
			--bg: #090a0f;
			--card: rgba(255, 255, 255, 0.05);
			--border: rgba(255, 255, 255, 0.15);
			--text: #e7ecff;
			--muted: #a1acc5;
			--accent: #38bdf8;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		* { box-sizing: border-box; }
		body {
			margin: 0;
			min-height: 100vh;
			display: flex;
			align-items: center;
			justify-content: center;
			background: radial-gradient(circle at 20% 20%, #111827, #030712 60%);
			color: var(--text);
		}
		.card {
			background: var(--card);
			border: 1px solid var(--border);
			border-radius: 18px;
			padding: 32px;
			width: min(440px, 92vw);
			box-shadow: 0 45px 100px rgba(0,0,0,0.35);
			backdrop-filter: blur(18px);
			text-align: center;
		}
		h1 { font-size: 1.4rem; margin: 0 0 10px; }
		p  { color: var(--muted); margin: 0 0 18px; }
		input[type=password] {
			width: 100%;
			padding: 12px;
			border-radius: 10px;
			border: 1px solid var(--border);
			background: rgba(0,0,0,0.35);
			color: var(--text);
			margin-bottom: 14px;
		}
		button {
			width: 100%;
			padding: 12px;
			border: none;
			border-radius: 10px;
			background: var(--accent);
			color: #05202e;
			font-weight: 600;
			cursor: pointer;
		}
		.error { color: #f87171; margin-bottom: 12px; }
	</style>
</head>
<body>
	<div class="card">
	{{block "content" .}}{{end}}
	</div>
</body>
</html>`

var messagePageTmpl = template.Must(
	template.Must(template.New("message_page").Parse(pageShell)).Parse(`
{{define "content"}}
	<h1>{{.Heading}}</h1>
	<p>{{.Detail}}</p>
{{end}}`))

var passwordPageTmpl = template.Must(
	template.Must(template.New("password_page").Parse(pageShell)).Parse(`
{{define "content"}}
	<h1>This link is protected</h1>
	<p>Enter the password to continue.</p>
	{{if .Failed}}<div class="error">Wrong password, try again.</div>{{end}}
	<form method="POST" action="{{.SubmitURL}}">
		<input type="password" name="password" placeholder="Password" autofocus required />
		<button type="submit">Continue</button>
	</form>
{{end}}`))

// RenderMessagePage renders a static informational page.
func RenderMessagePage(data MessagePageData) (string, error) {
	var buf bytes.Buffer
	if data.Title == "" {
		data.Title = data.Heading
	}
	if err := messagePageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPasswordPage renders the password prompt.
func RenderPasswordPage(data PasswordPageData) (string, error) {
	type payload struct {
		Title string
		PasswordPageData
	}
	var buf bytes.Buffer
	if err := passwordPageTmpl.Execute(&buf, payload{
		Title:            "Protected link",
		PasswordPageData: data,
	}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// NotFoundPage is the canned 404 body.
func NotFoundPage() MessagePageData {
	return MessagePageData{
		Title:   "Not found",
		Heading: "Link not found",
		Detail:  "This short link does not exist or has been removed.",
	}
}

// DenialPage maps a deny reason to its static page.
func DenialPage(reason model.DenyReason) MessagePageData {
	switch reason {
	case model.ReasonDisabled:
		return MessagePageData{Heading: "Link disabled", Detail: "The owner has turned this link off."}
	case model.ReasonExpired:
		return MessagePageData{Heading: "Link expired", Detail: "This link is past its expiration date."}
	case model.ReasonLimitReached:
		return MessagePageData{Heading: "Limit reached", Detail: "This link has hit its click limit."}
	case model.ReasonDeviceNotAllowed:
		return MessagePageData{Heading: "Device not allowed", Detail: "This link cannot be opened on your device."}
	case model.ReasonTimeRestricted:
		return MessagePageData{Heading: "Outside schedule", Detail: "This link is only available at certain times."}
	case model.ReasonGeoRestricted:
		return MessagePageData{Heading: "Not available here", Detail: "This link is not available in your region."}
	default:
		return MessagePageData{Heading: "Something went wrong", Detail: "Please try again in a moment."}
	}
}
