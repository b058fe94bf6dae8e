// Package templates renders the HTML pages of the import service as templ
// components.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/fleetsync/internal/core"
	"github.com/JonMunkholm/fleetsync/internal/history"
)

// FeedGroup is one card row on the dashboard.
type FeedGroup struct {
	Name  string
	Feeds []core.FeedInfo
}

// DashboardData is everything the dashboard shows.
type DashboardData struct {
	Groups []FeedGroup
	Recent []history.Summary
	Status core.LimiterStatus
}

const style = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2937}
table{border-collapse:collapse;width:100%;margin:1rem 0}th,td{border-bottom:1px solid #e5e7eb;padding:.4rem .6rem;text-align:left}
.card{border:1px solid #e5e7eb;border-radius:.5rem;padding:1rem;margin:.5rem 0}
.failed{color:#b91c1c}.muted{color:#6b7280}.alert{border-left:4px solid #b91c1c;padding:.5rem 1rem;background:#fef2f2}
code{background:#f3f4f6;padding:0 .25rem}`

// listedFailures caps the failure summary above the records table.
const listedFailures = 10

// page is a minimal writer that stops at the first error.
type page struct {
	w   io.Writer
	err error
}

func (p *page) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *page) rawf(format string, args ...any) {
	p.raw(fmt.Sprintf(format, args...))
}

func (p *page) text(s string) {
	p.raw(templ.EscapeString(s))
}

// layout wraps body in the shared page chrome.
func layout(title string, body func(p *page)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`)
		p.text(title)
		p.raw(` · fleetsync</title><style>` + style + `</style></head><body><header><a href="/">fleetsync</a></header><main>`)
		body(p)
		p.raw(`</main></body></html>`)
		return p.err
	})
}

// Dashboard lists the registered feeds and the latest runs.
func Dashboard(data DashboardData) templ.Component {
	return layout("Dashboard", func(p *page) {
		p.raw(`<h1>Import feeds</h1>`)
		p.rawf(`<p class="muted">%d of %d import slots free</p>`, data.Status.Available, data.Status.MaxConcurrent)
		for _, g := range data.Groups {
			p.raw(`<h2>`)
			p.text(g.Name)
			p.raw(`</h2>`)
			for _, f := range g.Feeds {
				p.raw(`<div class="card"><strong>`)
				p.text(f.Label)
				p.raw(`</strong> <code>`)
				p.text(f.Key)
				p.raw(`</code>`)
				if f.Description != "" {
					p.raw(`<p>`)
					p.text(f.Description)
					p.raw(`</p>`)
				}
				p.raw(`<form method="post" enctype="multipart/form-data" action="/api/import/`)
				p.text(f.Key)
				p.raw(`"><input type="file" name="file" accept=".xlsx,.xlsm,.xls,.csv" required> `)
				p.raw(`<input type="text" name="sheet" placeholder="sheet`)
				if f.Sheet != "" {
					p.raw(` (`)
					p.text(f.Sheet)
					p.raw(`)`)
				}
				p.raw(`"> <label><input type="checkbox" name="dry_run" value="true" checked> dry run</label> `)
				p.raw(`<button type="submit">Import</button></form></div>`)
			}
		}

		p.raw(`<h2>Recent runs</h2>`)
		if len(data.Recent) == 0 {
			p.raw(`<p class="muted">No runs yet.</p>`)
			return
		}
		p.raw(`<table><thead><tr><th>Started</th><th>Feed</th><th>Created</th><th>Patched</th><th>Skipped</th><th>Failed</th><th>Conflicts</th><th></th></tr></thead><tbody>`)
		for _, r := range data.Recent {
			p.raw(`<tr><td>`)
			p.text(r.StartedAt.Format(time.DateTime))
			p.raw(`</td><td>`)
			p.text(r.Feed)
			if r.DryRun {
				p.raw(` <span class="muted">(dry run)</span>`)
			}
			p.rawf(`</td><td>%d</td><td>%d</td><td>%d</td>`, r.Created, r.Patched, r.Skipped)
			p.rawf(`<td class="%s">%d</td><td>%d</td><td><a href="/runs/`, failedClass(r.Failed), r.Failed, r.Conflicts)
			p.text(r.RunID)
			p.raw(`">report</a></td></tr>`)
		}
		p.raw(`</tbody></table>`)
	})
}

// RunPage renders one run report.
func RunPage(r *core.Report) templ.Component {
	return layout("Run "+r.RunID, func(p *page) {
		p.raw(`<h1>`)
		p.text(r.Summary())
		p.raw(`</h1><p class="muted">Run <code>`)
		p.text(r.RunID)
		p.raw(`</code> started `)
		p.text(r.StartedAt.Format(time.DateTime))
		p.raw(`, took `)
		p.text(r.Duration.Round(time.Millisecond).String())
		if r.Origin.Trigger != "" {
			p.raw(`, from `)
			p.text(r.Origin.Trigger)
		}
		p.raw(`</p>`)

		if r.Error != "" {
			p.raw(`<div class="alert">Run aborted: `)
			p.text(r.Error)
			p.raw(`</div>`)
		}

		if failures := r.FirstFailures(listedFailures); len(failures) > 0 {
			p.raw(`<h2>Failures</h2><ul>`)
			for _, o := range failures {
				p.rawf(`<li>Row %d `, o.Row+1)
				p.text(o.Name)
				p.raw(`: `)
				p.text(o.Error)
				p.raw(` <code>`)
				p.text(o.Code)
				p.raw(`</code></li>`)
			}
			if more := r.Failed - len(failures); more > 0 {
				p.rawf(`<li class="muted">and %d more, see the records below</li>`, more)
			}
			p.raw(`</ul>`)
		}

		if len(r.Warnings) > 0 {
			p.raw(`<h2>Warnings</h2><ul>`)
			for _, w := range r.Warnings {
				p.raw(`<li>`)
				p.text(w.Error())
				p.raw(`</li>`)
			}
			p.raw(`</ul>`)
		}

		p.raw(`<h2>Records</h2><table><thead><tr><th>Row</th><th>Name</th><th>Action</th><th>Target</th><th>Fields</th><th>Notes</th></tr></thead><tbody>`)
		for _, o := range r.Outcomes {
			p.rawf(`<tr><td>%d</td><td>`, o.Row+1)
			p.text(o.Name)
			p.raw(`</td><td>`)
			p.text(string(o.Action))
			p.raw(`</td><td>`)
			p.text(o.TargetID)
			p.raw(`</td><td>`)
			p.text(strings.Join(o.Fields, ", "))
			p.raw(`</td><td>`)
			writeNotes(p, o)
			p.raw(`</td></tr>`)
		}
		p.raw(`</tbody></table>`)
	})
}

func writeNotes(p *page, o core.Outcome) {
	var notes []string
	if o.Match != "" {
		notes = append(notes, "matched by "+o.Match)
	}
	if o.Ambiguous > 1 {
		notes = append(notes, fmt.Sprintf("%d candidates", o.Ambiguous))
	}
	for _, c := range o.Conflicts {
		notes = append(notes, c.Error())
	}
	p.text(strings.Join(notes, "; "))
	if o.Failed() {
		p.raw(`<span class="failed">`)
		p.text(o.Error)
		if o.Code != "" {
			p.raw(` (`)
			p.text(o.Code)
			p.raw(`)`)
		}
		p.raw(`</span>`)
	}
}

// ErrorPage shows a coded error with a suggested action.
func ErrorPage(message, action, code string) templ.Component {
	return layout("Error", func(p *page) {
		p.raw(`<div class="alert" role="alert"><strong>`)
		p.text(message)
		p.raw(`</strong>`)
		if action != "" {
			p.raw(`<p>`)
			p.text(action)
			p.raw(`</p>`)
		}
		p.raw(`<p class="muted">Code: <code>`)
		p.text(code)
		p.raw(`</code></p></div>`)
	})
}

func failedClass(n int) string {
	if n > 0 {
		return "failed"
	}
	return ""
}
