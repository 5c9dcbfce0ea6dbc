// Package view merender template HTML embed untuk dokumen cetak seperti
// berita acara serah terima.
package view

import (
	"errors"
	"html/template"
	"io"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/amanah-kas/amanah-kas/web"
)

// Engine merender template HTML.
type Engine struct {
	templates *template.Template
}

// NewEngine mem-parse seluruh template embed saat proses start, sehingga
// template yang rusak terdeteksi sebelum server menerima trafik.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate":   formatDate,
		"formatRupiah": formatRupiah,
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render mengeksekusi template bernama dengan data yang diberikan.
func (e *Engine) Render(w io.Writer, name string, data any) error {
	if e == nil || e.templates == nil {
		return errors.New("view: engine not initialised")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02 Jan 2006 15:04")
}

// formatRupiah menampilkan nominal dengan pemisah ribuan gaya Indonesia,
// misalnya Rp 1.250.000.
func formatRupiah(amount float64) string {
	printer := message.NewPrinter(language.Indonesian)
	return printer.Sprintf("Rp %.0f", amount)
}
