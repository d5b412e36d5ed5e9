// Package cloudkit はCloudKit Web Servicesのクライアントを提供する。
// レコードのクエリ（continuationMarkerによるページング）とlookupのみを扱う。
package cloudkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL はCloudKit Web Servicesのエンドポイント。
	DefaultBaseURL = "https://api.apple-cloudkit.com"
	// apiVersion はWeb ServicesのAPIバージョン。
	apiVersion = "1"
	// maxRecordsPerLookup は1回のlookupで指定できる最大レコード数。
	maxRecordsPerLookup = 200
	// defaultResultsLimit はクエリ1ページあたりの取得件数のデフォルト値。
	defaultResultsLimit = 200
	// maxResponseSize はレスポンスボディの読み取り上限（32MB）。
	maxResponseSize = 32 << 20
)

// BatchFunc はクエリ結果の1ページごとに呼び出されるコールバック。
// エラーを返すとクエリはその時点で中断され、次のページは要求されない。
type BatchFunc func(ctx context.Context, records []Record) error

// Config はクライアントの接続設定。
type Config struct {
	BaseURL           string
	Container         string // 例: iCloud.com.example.app
	Environment       string // development / production
	Database          string // public / private / shared
	APIToken          string
	ResultsLimit      int
	RequestsPerSecond float64 // 0以下の場合は制限しない
}

// Client はCloudKit Web Servicesのクライアント。
// リトライは行わない。失敗時は呼び出し元にエラーを返す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
	limiter    *rate.Limiter
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.ResultsLimit <= 0 {
		config.ResultsLimit = defaultResultsLimit
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

type queryRequest struct {
	Query              Query     `json:"query"`
	ResultsLimit       int       `json:"resultsLimit,omitempty"`
	DesiredKeys        *[]string `json:"desiredKeys,omitempty"`
	ContinuationMarker string    `json:"continuationMarker,omitempty"`
}

type queryResponse struct {
	Records            []Record `json:"records"`
	ContinuationMarker string   `json:"continuationMarker"`
}

type lookupRecord struct {
	RecordName string `json:"recordName"`
}

type lookupRequest struct {
	Records     []lookupRecord `json:"records"`
	DesiredKeys *[]string      `json:"desiredKeys,omitempty"`
}

type lookupResponse struct {
	Records []Record `json:"records"`
}

// Query はクエリを実行し、結果をページ単位でfnに渡す。
// fnの処理が完了してから次のページを要求する。空のページではfnを呼び出さない。
func (c *Client) Query(ctx context.Context, query Query, opts QueryOptions, fn BatchFunc) error {
	marker := ""
	for page := 1; ; page++ {
		req := queryRequest{
			Query:              query,
			ResultsLimit:       c.config.ResultsLimit,
			DesiredKeys:        desiredKeys(opts.DesiredKeys),
			ContinuationMarker: marker,
		}

		var resp queryResponse
		if err := c.post(ctx, "records/query", req, &resp); err != nil {
			return fmt.Errorf("%sのクエリに失敗しました（%dページ目）: %w", query.RecordType, page, err)
		}

		c.logger.Debug("CloudKitクエリのページを受信しました",
			slog.String("record_type", query.RecordType),
			slog.Int("page", page),
			slog.Int("count", len(resp.Records)),
		)

		if len(resp.Records) > 0 {
			if err := fn(ctx, resp.Records); err != nil {
				return err
			}
		}

		if resp.ContinuationMarker == "" {
			return nil
		}
		if resp.ContinuationMarker == marker {
			return fmt.Errorf("%sのクエリで同じcontinuationMarkerが返されました（%dページ目）", query.RecordType, page)
		}
		marker = resp.ContinuationMarker
	}
}

// Lookup はrecordNameを指定してレコードを一括取得する。
// 200件単位に分割して要求し、分割ごとにfnを呼び出す。
// 見つからないレコードはServerErrorCodeが設定された状態でfnに渡される。
func (c *Client) Lookup(ctx context.Context, recordNames []string, opts LookupOptions, fn BatchFunc) error {
	for start := 0; start < len(recordNames); start += maxRecordsPerLookup {
		end := start + maxRecordsPerLookup
		if end > len(recordNames) {
			end = len(recordNames)
		}

		refs := make([]lookupRecord, 0, end-start)
		for _, name := range recordNames[start:end] {
			refs = append(refs, lookupRecord{RecordName: name})
		}

		var resp lookupResponse
		req := lookupRequest{Records: refs, DesiredKeys: desiredKeys(opts.DesiredKeys)}
		if err := c.post(ctx, "records/lookup", req, &resp); err != nil {
			return fmt.Errorf("レコードのlookupに失敗しました: %w", err)
		}

		if err := fn(ctx, resp.Records); err != nil {
			return err
		}
	}
	return nil
}

// post はoperationのエンドポイントにJSONをPOSTし、レスポンスをoutにデコードする。
func (c *Client) post(ctx context.Context, operation string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	endpoint, err := c.endpoint(operation)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "chargesync/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("CloudKitへのリクエストに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		ckErr := &Error{StatusCode: resp.StatusCode}
		// エラーボディがJSONでない場合はステータスのみを返す
		_ = json.Unmarshal(data, ckErr)
		c.logger.Error("CloudKitがエラーステータスを返しました",
			slog.String("operation", operation),
			slog.Int("http_status", resp.StatusCode),
			slog.String("server_error_code", ckErr.ServerErrorCode),
			slog.String("reason", ckErr.Reason),
		)
		return ckErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// endpoint はoperationのURLを組み立てる。
// 形式: {base}/database/1/{container}/{environment}/{database}/{operation}?ckAPIToken=...
func (c *Client) endpoint(operation string) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("ベースURLのパースに失敗しました: %w", err)
	}

	u = u.JoinPath("database", apiVersion, c.config.Container, c.config.Environment, c.config.Database, operation)

	q := u.Query()
	q.Set("ckAPIToken", c.config.APIToken)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// desiredKeys はnilと空スライスを区別してリクエストに載せる。
func desiredKeys(keys []string) *[]string {
	if keys == nil {
		return nil
	}
	return &keys
}
