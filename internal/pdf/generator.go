package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrEmptyDocument 表示没有可打印的 HTML。
var ErrEmptyDocument = errors.New("pdf: empty html document")

// PaperSize 描述纸张尺寸，单位英寸。
type PaperSize struct {
	Width  float64
	Height float64
}

var (
	PaperA4     = PaperSize{Width: 8.27, Height: 11.69}
	PaperLetter = PaperSize{Width: 8.5, Height: 11}
)

// ParsePaperSize 解析 "a4" 或 "letter"，其他值返回 A4。
func ParsePaperSize(name string) PaperSize {
	if strings.EqualFold(strings.TrimSpace(name), "letter") {
		return PaperLetter
	}
	return PaperA4
}

// 页边距，单位英寸。简历模板自带内边距，这里只留出打印安全区。
const pageMargin = 0.4

// Printer 使用 go-rod 在无头浏览器中把 HTML 打印为 PDF。
type Printer struct {
	browserBin string
	timeout    time.Duration
	paper      PaperSize
}

// NewPrinter 创建打印器。browserBin 为空时自动查找本机 Chromium。
func NewPrinter(browserBin string, timeout time.Duration, paper PaperSize) *Printer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if paper.Width <= 0 || paper.Height <= 0 {
		paper = PaperA4
	}
	return &Printer{browserBin: strings.TrimSpace(browserBin), timeout: timeout, paper: paper}
}

// printOptions 返回打印参数。模板中的 @page 规则优先于这里的纸张尺寸。
func (p *Printer) printOptions() *proto.PagePrintToPDF {
	margin := pageMargin
	width, height := p.paper.Width, p.paper.Height
	return &proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
		PaperWidth:        &width,
		PaperHeight:       &height,
		MarginTop:         &margin,
		MarginBottom:      &margin,
		MarginLeft:        &margin,
		MarginRight:       &margin,
	}
}

// Print 渲染 HTML 并返回 PDF 字节。
func (p *Printer) Print(ctx context.Context, htmlContent string) ([]byte, error) {
	if strings.TrimSpace(htmlContent) == "" {
		return nil, ErrEmptyDocument
	}

	launch := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true)

	if p.browserBin != "" {
		launch = launch.Bin(p.browserBin)
	} else if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	defer launch.Cleanup()

	browser := rod.New().Context(ctx).ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	page, err := browser.Timeout(p.timeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()

	page = page.Timeout(p.timeout)
	if err := page.SetDocumentContent(htmlContent); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	reader, err := page.PDF(p.printOptions())
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("export pdf: unexpected output (%d bytes)", len(data))
	}
	return data, nil
}
