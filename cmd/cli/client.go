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

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"docconv/internal/format"
	"docconv/internal/pipeline/common"
)

func apiBaseURL() string {
	if u := os.Getenv("DOCCONV_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	c := resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(5*time.Minute).
		SetHeader("Content-Type", "application/json")
	if token := os.Getenv("DOCCONV_TOKEN"); token != "" {
		c.SetAuthToken(token)
	}
	return c
}

// apiError 非 2xx 响应
func apiError(op string, resp *resty.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return fmt.Errorf("%s: %d %s", op, resp.StatusCode(), body.Error)
	}
	return fmt.Errorf("%s: %d %s", op, resp.StatusCode(), resp.String())
}

func health(c *resty.Client) error {
	resp, err := c.R().Get("/api/health")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return apiError("GET /api/health", resp)
	}
	return nil
}

func listFormats(c *resty.Client) ([]format.Format, error) {
	var out struct {
		Formats []format.Format `json:"formats"`
	}
	resp, err := c.R().SetResult(&out).Get("/api/formats")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("GET /api/formats", resp)
	}
	return out.Formats, nil
}

func listTargets(c *resty.Client, formatID string) ([]format.Format, error) {
	var out struct {
		Targets []format.Format `json:"targets"`
	}
	resp, err := c.R().SetResult(&out).SetPathParam("id", formatID).Get("/api/formats/{id}/targets")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("GET targets", resp)
	}
	return out.Targets, nil
}

func uploadFile(c *resty.Client, path string) (*common.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc common.Document
	resp, err := c.R().
		SetHeader("Content-Type", "application/octet-stream").
		SetQueryParam("name", filepath.Base(path)).
		SetBody(data).
		SetResult(&doc).
		Post("/api/documents")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusCreated {
		return nil, apiError("POST /api/documents", resp)
	}
	return &doc, nil
}

func listDocuments(c *resty.Client, query map[string]string) ([]common.Document, error) {
	var out struct {
		Documents []common.Document `json:"documents"`
	}
	resp, err := c.R().SetQueryParams(query).SetResult(&out).Get("/api/documents")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("GET /api/documents", resp)
	}
	return out.Documents, nil
}

func downloadDocument(c *resty.Client, id string, w io.Writer) error {
	resp, err := c.R().SetPathParam("id", id).Get("/api/documents/{id}/download")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return apiError("GET download", resp)
	}
	_, err = w.Write(resp.Body())
	return err
}

// streamEvents POST 后按 NDJSON 逐行解码，每个事件回调一次
func streamEvents[T any](c *resty.Client, path string, body interface{}, onEvent func(T)) error {
	resp, err := c.R().
		SetQueryParam("stream", "true").
		SetBody(body).
		SetDoNotParseResponse(true).
		Post(path)
	if err != nil {
		return err
	}
	raw := resp.RawBody()
	defer raw.Close()
	if resp.StatusCode() != http.StatusOK {
		data, _ := io.ReadAll(raw)
		return fmt.Errorf("POST %s: %d %s", path, resp.StatusCode(), data)
	}
	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev T
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		onEvent(ev)
	}
	return scanner.Err()
}

func convertDocument(c *resty.Client, id, target string, onEvent func(common.ConversionEvent)) error {
	return streamEvents(c, "/api/convert", map[string]string{"document_id": id, "target": target}, onEvent)
}

func batchConvert(c *resty.Client, target string, ids []string, onEvent func(common.BatchProgress)) error {
	return streamEvents(c, "/api/batch", map[string]interface{}{"document_ids": ids, "target": target}, onEvent)
}

func verifyConversion(c *resty.Client, sourceID, convertedID string, onEvent func(common.VerificationEvent)) error {
	return streamEvents(c, "/api/verify", map[string]string{"source_id": sourceID, "converted_id": convertedID}, onEvent)
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
