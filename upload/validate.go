package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/chaos-io/bgremover/config"
)

// FieldName 上传表单中的文件字段名
const FieldName = "image"

// ErrTooLarge 请求体超过上限，由外层直接返回 413，不进入校验流程
var ErrTooLarge = errors.New("request body too large")

// File 通过校验的上传文件。Filename 为 Content-Disposition 中的原始 filename 参数。
type File struct {
	Filename string
	Data     []byte
}

// Validate 依次检查：字段存在、文件名非空、后缀在允许列表中。第一个失败即返回。
// 只有带 filename 参数（可以为空）的 part 才算文件；不做基于内容（magic bytes）的校验。
func Validate(r *http.Request, exts config.ExtensionSet) (*File, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		// 非 multipart 视为没有上传文件
		return nil, &Error{Kind: KindMissingFile, Err: err}
	}

	file, err := readFile(mr)
	if err != nil {
		if tooLarge(err) {
			return nil, fmt.Errorf("read multipart form: %w", ErrTooLarge)
		}
		return nil, &Error{Kind: KindMissingFile, Err: err}
	}

	switch {
	case file == nil:
		return nil, &Error{Kind: KindMissingFile}
	case file.Filename == "":
		return nil, &Error{Kind: KindEmptyFilename}
	case !Allowed(file.Filename, exts):
		return nil, &Error{Kind: KindDisallowedType, Err: fmt.Errorf("extension of %q not allowed", file.Filename)}
	}
	return file, nil
}

// readFile 读完整个表单，返回第一个名为 FieldName 的文件 part，没有时返回 nil
func readFile(mr *multipart.Reader) (*File, error) {
	var file *File
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return file, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next part: %w", err)
		}

		name, filename, isFile := disposition(part)
		if file != nil || name != FieldName || !isFile {
			if _, err := io.Copy(io.Discard, part); err != nil {
				return nil, fmt.Errorf("skip part %q: %w", name, err)
			}
			continue
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("read part %q: %w", name, err)
		}
		file = &File{Filename: filename, Data: data}
	}
}

// disposition 解析 part 的 Content-Disposition。part.FileName() 会对文件名做 filepath.Base，这里取原值。
func disposition(part *multipart.Part) (name, filename string, isFile bool) {
	v := part.Header.Get("Content-Disposition")
	if v == "" {
		return "", "", false
	}
	d, params, err := mime.ParseMediaType(v)
	if err != nil || d != "form-data" {
		return "", "", false
	}
	filename, isFile = params["filename"]
	return params["name"], filename, isFile
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// Allowed 文件名必须包含 '.'，且最后一个 '.' 之后的部分（忽略大小写）在允许列表中
func Allowed(filename string, exts config.ExtensionSet) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return false
	}
	return exts.Contains(strings.ToLower(filename[i+1:]))
}
