package rembg

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/chaos-io/bgremover/config"
	"github.com/chaos-io/bgremover/imaging"
	nhttp "github.com/chaos-io/bgremover/util/http"
)

const (
	BiRefNetModel = "BiRefNet"

	// workflow.json 中 LoadImage 节点的占位符
	inputPlaceholder = `"__INPUT_IMAGE__"`
)

//go:embed workflow.json
var workflowData string

// BiRefNetRemBG 通过 ComfyUI 的 BiRefNet 工作流去背景：
// 上传图片 -> 提交 prompt -> 轮询 history -> 下载输出图片。
type BiRefNetRemBG struct {
	baseURL      string
	timeout      time.Duration
	pollInterval time.Duration
	clientID     string
	cli          nhttp.IClient
}

func NewBiRefNetRemBG(cfg config.BiRefNetConfig) *BiRefNetRemBG {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &BiRefNetRemBG{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		timeout:      cfg.Timeout,
		pollInterval: poll,
		clientID:     ksuid.New().String(),
		cli:          nhttp.NewHTTPClient(),
	}
}

func (b *BiRefNetRemBG) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	name, err := b.uploadImage(ctx, img)
	if err != nil {
		return nil, err
	}

	promptID, err := b.prompt(ctx, name)
	if err != nil {
		return nil, err
	}

	out, err := b.waitOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}

	return b.fetchImage(ctx, out)
}

func (b *BiRefNetRemBG) endpoint(path string) string {
	return b.baseURL + "/api/" + path
}

type uploadImageResp struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}
*/
func (b *BiRefNetRemBG) uploadImage(ctx context.Context, img image.Image) (string, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", ksuid.New().String()+".png")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data.Bytes()); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	_ = writer.WriteField("type", "input")
	_ = writer.WriteField("overwrite", "true")
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	resp := &uploadImageResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.endpoint("upload/image"),
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if resp.Name == "" {
		return "", errors.New("upload image: empty name in response")
	}

	slog.Debug("image uploaded", "model", BiRefNetModel, "name", resp.Name, "subfolder", resp.Subfolder)

	if resp.Subfolder != "" {
		return resp.Subfolder + "/" + resp.Name, nil
	}
	return resp.Name, nil
}

type promptReq struct {
	Prompt   map[string]any `json:"prompt"`
	ClientID string         `json:"client_id"`
}

type promptResp struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
}

/*
	curl -X POST "$BASE_URL/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": '"$(cat workflow.json)"'}'
*/
func (b *BiRefNetRemBG) prompt(ctx context.Context, imageName string) (string, error) {
	quoted, err := json.Marshal(imageName)
	if err != nil {
		return "", fmt.Errorf("marshal image name: %w", err)
	}
	data := strings.Replace(workflowData, inputPlaceholder, string(quoted), 1)

	wk := map[string]any{}
	if err := json.Unmarshal([]byte(data), &wk); err != nil {
		return "", fmt.Errorf("unmarshal workflow data: %w", err)
	}

	resp := &promptResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.endpoint("prompt"),
		Method:     http.MethodPost,
		Body:       &promptReq{Prompt: wk, ClientID: b.clientID},
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("submit prompt: %w", err)
	}
	if len(resp.NodeErrors) > 0 {
		return "", fmt.Errorf("submit prompt: node errors: %v", resp.NodeErrors)
	}
	if resp.PromptID == "" {
		return "", errors.New("submit prompt: empty prompt_id in response")
	}

	slog.Debug("prompt queued", "prompt_id", resp.PromptID, "number", resp.Number)
	return resp.PromptID, nil
}

type imageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type historyEntry struct {
	Outputs map[string]struct {
		Images []imageRef `json:"images"`
	} `json:"outputs"`
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
}

// waitOutput 轮询 history 直到 prompt 产生输出图片
func (b *BiRefNetRemBG) waitOutput(ctx context.Context, promptID string) (imageRef, error) {
	for {
		history := map[string]historyEntry{}
		reqParam := &nhttp.RequestParam{
			RequestURI: b.endpoint("history/" + url.PathEscape(promptID)),
			Method:     http.MethodGet,
			Response:   &history,
		}
		if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
			return imageRef{}, fmt.Errorf("get history: %w", err)
		}

		if entry, ok := history[promptID]; ok {
			if entry.Status.StatusStr == "error" {
				return imageRef{}, fmt.Errorf("prompt %s failed", promptID)
			}
			if ref, ok := firstImage(entry); ok {
				return ref, nil
			}
			if entry.Status.Completed {
				return imageRef{}, fmt.Errorf("prompt %s completed without output image", promptID)
			}
		}

		select {
		case <-ctx.Done():
			return imageRef{}, fmt.Errorf("wait for prompt %s: %w", promptID, ctx.Err())
		case <-time.After(b.pollInterval):
		}
	}
}

// firstImage 按节点 id 顺序取第一张图片，优先 SaveImage 的 output 类型
func firstImage(entry historyEntry) (imageRef, bool) {
	nodes := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	var fallback *imageRef
	for _, id := range nodes {
		for _, ref := range entry.Outputs[id].Images {
			if ref.Type == "output" {
				return ref, true
			}
			if fallback == nil {
				r := ref
				fallback = &r
			}
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return imageRef{}, false
}

func (b *BiRefNetRemBG) fetchImage(ctx context.Context, ref imageRef) (image.Image, error) {
	q := url.Values{}
	q.Set("filename", ref.Filename)
	q.Set("subfolder", ref.Subfolder)
	q.Set("type", ref.Type)

	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: b.endpoint("view") + "?" + q.Encode(),
		Method:     http.MethodGet,
		Response:   &data,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("fetch output image: %w", err)
	}

	img, _, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("fetch output image: %w", err)
	}
	return img, nil
}
