// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package codec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/richardlehane/mscfb"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"docconv/internal/pipeline/common"
)

// wordDecoder 解码 RFC 2047 编码头，非 UTF-8 字符集通过 htmlindex 查找
var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

func decodeHeader(v string) string {
	out, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return out
}

// mailMessage 解析后的单封邮件
type mailMessage struct {
	subject     string
	from        string
	to          string
	date        *time.Time
	text        string
	html        string
	attachments []common.DocumentImage
}

func decodeEML(ctx context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	msg, err := parseMail(data)
	if err != nil {
		return nil, err
	}
	b := newBuilder()
	addMail(b, msg, false)
	return &Parsed{Content: b.build(), Metadata: mailMetadata(msg, 1)}, nil
}

// decodeMBOX 逐封解析；每封邮件以主题作为二级标题
func decodeMBOX(ctx context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	parts := splitMbox(data)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty mailbox", ErrMalformed)
	}
	b := newBuilder()
	var first *mailMessage
	count := 0
	for _, raw := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := parseMail(raw)
		if err != nil {
			continue
		}
		if first == nil {
			first = msg
		}
		addMail(b, msg, true)
		count++
	}
	if first == nil {
		return nil, fmt.Errorf("%w: no readable message in mailbox", ErrMalformed)
	}
	meta := mailMetadata(first, count)
	meta.Properties["message_count"] = fmt.Sprint(count)
	return &Parsed{Content: b.build(), Metadata: meta}, nil
}

func addMail(b *builder, msg *mailMessage, asSection bool) {
	if msg.subject != "" {
		level := 1
		if asSection {
			level = 2
		}
		b.heading(msg.subject, level)
	}
	body := msg.text
	if body == "" && msg.html != "" {
		root, err := html.Parse(strings.NewReader(msg.html))
		if err == nil {
			walkHTML(b, root)
		}
	} else {
		for _, para := range blankLines.Split(strings.ReplaceAll(body, "\r\n", "\n"), -1) {
			b.paragraph(para)
		}
		if msg.html != "" {
			collectHTMLLinks(b, msg.html)
		}
	}
	for _, img := range msg.attachments {
		b.image(img)
	}
	if msg.html != "" && b.content.FormattedText == "" {
		b.content.FormattedText = msg.html
	}
}

func mailMetadata(msg *mailMessage, pages int) common.DocumentMetadata {
	meta := common.DocumentMetadata{
		Title:        msg.subject,
		Author:       msg.from,
		Subject:      msg.subject,
		CreationDate: msg.date,
		PageCount:    pages,
		Properties:   map[string]string{},
	}
	if msg.to != "" {
		meta.Properties["to"] = msg.to
	}
	return meta
}

func parseMail(data []byte) (*mailMessage, error) {
	m, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: read message: %v", ErrMalformed, err)
	}
	msg := &mailMessage{
		subject: decodeHeader(m.Header.Get("Subject")),
		from:    decodeHeader(m.Header.Get("From")),
		to:      decodeHeader(m.Header.Get("To")),
	}
	if addr, err := mail.ParseAddress(msg.from); err == nil {
		if addr.Name != "" {
			msg.from = addr.Name
		} else {
			msg.from = addr.Address
		}
	}
	if d, err := m.Header.Date(); err == nil {
		msg.date = &d
	}
	if err := readPart(msg, textproto.MIMEHeader(m.Header), m.Body, 0); err != nil {
		return nil, err
	}
	return msg, nil
}

// readPart 递归读取 MIME 部件：首个 text/plain 与 text/html 为正文，图片附件进入内容
func readPart(msg *mailMessage, header textproto.MIMEHeader, body io.Reader, depth int) error {
	if depth > 8 {
		return nil
	}
	ct := header.Get("Content-Type")
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w: multipart: %v", ErrMalformed, err)
			}
			if err := readPart(msg, part.Header, part, depth+1); err != nil {
				return err
			}
		}
	}

	raw, err := io.ReadAll(transferDecoder(header.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrMalformed, err)
	}
	disposition, _, _ := mime.ParseMediaType(header.Get("Content-Disposition"))
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		img := common.DocumentImage{Data: raw, MimeType: mediaType}
		if cfg, ok := imageConfig(raw); ok {
			img.Width, img.Height = cfg[0], cfg[1]
		}
		msg.attachments = append(msg.attachments, img)
	case disposition == "attachment":
	case mediaType == "text/plain" && msg.text == "":
		msg.text = decodeCharset(raw, params["charset"])
	case mediaType == "text/html" && msg.html == "":
		msg.html = decodeCharset(raw, params["charset"])
	}
	return nil
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, &newlineStripper{r: r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// newlineStripper base64 正文中的换行
type newlineStripper struct {
	r io.Reader
}

func (n *newlineStripper) Read(p []byte) (int, error) {
	for {
		c, err := n.r.Read(p)
		j := 0
		for _, b := range p[:c] {
			if b != '\r' && b != '\n' && b != ' ' && b != '\t' {
				p[j] = b
				j++
			}
		}
		if j > 0 || err != nil {
			return j, err
		}
	}
}

func decodeCharset(data []byte, charset string) string {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
		return toUTF8(data)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return toUTF8(data)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return toUTF8(data)
	}
	return string(out)
}

// splitMbox 以行首 "From " 分隔邮件，并还原 ">From " 转义
func splitMbox(data []byte) [][]byte {
	var out [][]byte
	var cur bytes.Buffer
	started := false
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if bytes.HasPrefix(line, []byte("From ")) {
			if started && cur.Len() > 0 {
				out = append(out, append([]byte(nil), cur.Bytes()...))
			}
			cur.Reset()
			started = true
			continue
		}
		if !started {
			continue
		}
		if bytes.HasPrefix(line, []byte(">From ")) {
			line = line[1:]
		}
		cur.Write(line)
		cur.WriteByte('\n')
	}
	if started && cur.Len() > 0 {
		out = append(out, cur.Bytes())
	}
	return out
}

const (
	msgSubjectStream = "__substg1.0_0037001F"
	msgBodyStream    = "__substg1.0_1000001F"
	msgSenderStream  = "__substg1.0_0C1A001F"
	msgHTMLStream    = "__substg1.0_10130102"
)

// decodeMSG 读取 Outlook 复合文档中的主题、发件人与正文流（UTF-16LE）
func decodeMSG(_ context.Context, data []byte, _ *common.ConversionOptions) (*Parsed, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open msg: %v", ErrMalformed, err)
	}
	msg := &mailMessage{}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		// 仅取顶层属性流，忽略附件与收件人子存储
		if len(entry.Path) > 0 {
			continue
		}
		switch entry.Name {
		case msgSubjectStream, msgBodyStream, msgSenderStream, msgHTMLStream:
		default:
			continue
		}
		buf, err := io.ReadAll(entry)
		if err != nil {
			continue
		}
		switch entry.Name {
		case msgSubjectStream:
			msg.subject = utf16LE(buf)
		case msgBodyStream:
			msg.text = utf16LE(buf)
		case msgSenderStream:
			msg.from = utf16LE(buf)
		case msgHTMLStream:
			msg.html = toUTF8(buf)
		}
	}
	if msg.subject == "" && msg.text == "" && msg.html == "" {
		return nil, fmt.Errorf("%w: no message streams", ErrMalformed)
	}
	b := newBuilder()
	addMail(b, msg, false)
	return &Parsed{Content: b.build(), Metadata: mailMetadata(msg, 1)}, nil
}

func utf16LE(data []byte) string {
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(data)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(out), "\x00")
}

// encodeEML 输出 RFC 5322 邮件；保留格式时附 text/html 备选正文
func encodeEML(_ context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	return buildMail(doc, opts, time.Now())
}

// encodeMBOX 单封邮件的 mbox
func encodeMBOX(_ context.Context, doc *Parsed, opts *common.ConversionOptions) ([]byte, error) {
	now := time.Now()
	msg, err := buildMail(doc, opts, now)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From docconv@localhost %s\n", now.UTC().Format(time.ANSIC))
	for _, line := range strings.Split(strings.ReplaceAll(string(msg), "\r\n", "\n"), "\n") {
		if strings.HasPrefix(line, "From ") {
			buf.WriteByte('>')
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func buildMail(doc *Parsed, opts *common.ConversionOptions, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	h := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
		}
	}
	subject := plainTitle(doc)
	from := "docconv@localhost"
	if opts.PreserveMetadata && doc.Metadata.Author != "" {
		from = (&mail.Address{Name: doc.Metadata.Author, Address: "docconv@localhost"}).String()
	}
	h("From", from)
	h("To", doc.Metadata.Properties["to"])
	h("Subject", mime.QEncoding.Encode("utf-8", subject))
	date := now
	if opts.PreserveMetadata && doc.Metadata.CreationDate != nil {
		date = *doc.Metadata.CreationDate
	}
	h("Date", date.Format(time.RFC1123Z))
	h("MIME-Version", "1.0")

	text := mailBodyText(doc.Content, subject)
	if !opts.PreserveFormatting {
		h("Content-Type", "text/plain; charset=utf-8")
		h("Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQP(&buf, text); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	var parts bytes.Buffer
	mw := multipart.NewWriter(&parts)
	h("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")
	for _, alt := range []struct{ ct, body string }{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", renderHTML(doc, opts)},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {alt.ct},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		if err := writeQP(w, alt.body); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	buf.Write(parts.Bytes())
	return buf.Bytes(), nil
}

// mailBodyText 主题已在头中，正文去掉与主题相同的首个标题
func mailBodyText(c common.DocumentContent, subject string) string {
	var sb strings.Builder
	for i, blk := range Blocks(c) {
		if i == 0 && blk.Kind == BlockHeading && blk.Text == subject {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(blk.Text)
	}
	return sb.String()
}

func writeQP(w io.Writer, s string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(s)); err != nil {
		return err
	}
	return qp.Close()
}
