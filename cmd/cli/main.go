package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"

	"docconv/internal/pipeline/common"
)

const version = "docconv cli 0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}
	if err := run(newClient(), os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// usageError 参数错误，打印用法
type usageError string

func (e usageError) Error() string { return "Usage: docconv " + string(e) }

func run(c *resty.Client, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "version":
		fmt.Fprintln(out, version)
	case "health":
		if err := health(c); err != nil {
			return fmt.Errorf("健康检查失败: %w", err)
		}
		fmt.Fprintln(out, "ok")
	case "formats":
		formats, err := listFormats(c)
		if err != nil {
			return fmt.Errorf("列出格式失败: %w", err)
		}
		for _, f := range formats {
			fmt.Fprintf(out, "%-8s %-12s %s\n", f.ID, f.Category, f.Name)
		}
	case "targets":
		if len(args) < 1 {
			return usageError("targets <format_id>")
		}
		targets, err := listTargets(c, args[0])
		if err != nil {
			return fmt.Errorf("列出目标格式失败: %w", err)
		}
		ids := make([]string, 0, len(targets))
		for _, f := range targets {
			ids = append(ids, f.ID)
		}
		fmt.Fprintln(out, strings.Join(ids, " "))
	case "upload":
		if len(args) < 1 {
			return usageError("upload <file>")
		}
		doc, err := uploadFile(c, args[0])
		if err != nil {
			return fmt.Errorf("上传失败: %w", err)
		}
		fmt.Fprintf(out, "%s\t%s\t%d\n", doc.ID, doc.Format.ID, doc.Size)
	case "docs":
		query := map[string]string{}
		if len(args) > 0 {
			query["q"] = args[0]
		}
		docs, err := listDocuments(c, query)
		if err != nil {
			return fmt.Errorf("列出文档失败: %w", err)
		}
		fmt.Fprintln(out, prettyJSON(docs))
	case "download":
		if len(args) < 1 {
			return usageError("download <doc_id> [file]")
		}
		w := out
		if len(args) > 1 {
			f, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := downloadDocument(c, args[0], w); err != nil {
			return fmt.Errorf("下载失败: %w", err)
		}
	case "convert":
		if len(args) < 2 {
			return usageError("convert <doc_id> <target>")
		}
		return runConvert(c, args[0], args[1], out)
	case "batch":
		if len(args) < 2 {
			return usageError("batch <target> <doc_id...>")
		}
		return runBatch(c, args[0], args[1:], out)
	case "verify":
		if len(args) < 2 {
			return usageError("verify <source_id> <converted_id>")
		}
		return runVerify(c, args[0], args[1], out)
	default:
		printUsage(out)
		return fmt.Errorf("未知命令: %s", cmd)
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docconv <command> [args]")
	fmt.Fprintln(w, "  version                        - 显示版本")
	fmt.Fprintln(w, "  health                         - 健康检查")
	fmt.Fprintln(w, "  formats                        - 列出支持的格式")
	fmt.Fprintln(w, "  targets <format_id>            - 列出可转换的目标格式")
	fmt.Fprintln(w, "  upload <file>                  - 上传文档，输出 id")
	fmt.Fprintln(w, "  docs [query]                   - 列出或搜索文档")
	fmt.Fprintln(w, "  download <doc_id> [file]       - 下载文档内容")
	fmt.Fprintln(w, "  convert <doc_id> <target>      - 转换文档并输出进度")
	fmt.Fprintln(w, "  batch <target> <doc_id...>     - 批量转换")
	fmt.Fprintln(w, "  verify <source_id> <converted_id> - 校验转换结果")
	fmt.Fprintln(w, "环境变量: DOCCONV_API_URL（默认 http://localhost:8080）, DOCCONV_TOKEN")
}

func runConvert(c *resty.Client, id, target string, out io.Writer) error {
	var final common.ConversionEvent
	err := convertDocument(c, id, target, func(ev common.ConversionEvent) {
		switch ev.Type {
		case common.EventProcessing:
			fmt.Fprintf(out, "processing %3.0f%%\n", ev.Progress*100)
		case common.EventCompleted, common.EventFailed:
			final = ev
		default:
			fmt.Fprintln(out, ev.Type)
		}
	})
	if err != nil {
		return fmt.Errorf("转换失败: %w", err)
	}
	switch final.Type {
	case common.EventCompleted:
		fmt.Fprintln(out, prettyJSON(final.Result))
		return nil
	case common.EventFailed:
		return fmt.Errorf("转换失败: %s", final.Reason)
	default:
		return fmt.Errorf("转换未完成：事件流提前结束")
	}
}

func runBatch(c *resty.Client, target string, ids []string, out io.Writer) error {
	var last common.BatchProgress
	err := batchConvert(c, target, ids, func(p common.BatchProgress) {
		last = p
		if !p.Done() {
			fmt.Fprintf(out, "%d/%d\n", p.ProcessedDocuments, p.TotalDocuments)
		}
	})
	if err != nil {
		return fmt.Errorf("批量转换失败: %w", err)
	}
	for _, r := range last.Results {
		if r.Output != nil {
			fmt.Fprintf(out, "ok\t%s\t%s\n", r.Source.ID, r.Output.ID)
		}
	}
	for _, f := range last.Failed {
		fmt.Fprintf(out, "failed\t%s\t%s\n", f.Document.ID, f.Reason)
	}
	if len(last.Failed) > 0 {
		return fmt.Errorf("%d 个文档转换失败", len(last.Failed))
	}
	return nil
}

func runVerify(c *resty.Client, sourceID, convertedID string, out io.Writer) error {
	var final common.VerificationEvent
	err := verifyConversion(c, sourceID, convertedID, func(ev common.VerificationEvent) {
		if ev.Type == common.EventCompleted || ev.Type == common.EventFailed {
			final = ev
		}
	})
	if err != nil {
		return fmt.Errorf("校验失败: %w", err)
	}
	if final.Type != common.EventCompleted || final.Result == nil {
		return fmt.Errorf("校验失败: %s", final.Reason)
	}
	fmt.Fprintln(out, prettyJSON(final.Result))
	if !final.Result.Success {
		return fmt.Errorf("校验未通过: %.2f < %.2f", final.Result.OverallScore, final.Result.MinimumThreshold)
	}
	return nil
}
