package middleware

import (
	"bytes"
	"io"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// EnsureUTF8Body 确保请求体是 UTF-8 编码的中间件
// Windows 中文环境下 curl 可能以 GBK（代码页 936）发送请求体，
// 这里检测并转换非 UTF-8 的内容，转换失败时保留原始字节
func EnsureUTF8Body() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Next()
			return
		}
		c.Request.Body.Close()

		restore := func(data []byte) {
			c.Request.Body = io.NopCloser(bytes.NewReader(data))
		}

		if len(bodyBytes) == 0 || utf8.Valid(bodyBytes) {
			restore(bodyBytes)
			c.Next()
			return
		}

		utf8Bytes, err := convertGBKToUTF8(bodyBytes)
		if err != nil || !utf8.Valid(utf8Bytes) {
			restore(bodyBytes)
			c.Next()
			return
		}

		restore(utf8Bytes)
		c.Request.ContentLength = int64(len(utf8Bytes))
		c.Next()
	}
}

// convertGBKToUTF8 将 GBK 编码的字节转换为 UTF-8
func convertGBKToUTF8(gbkBytes []byte) ([]byte, error) {
	reader := transform.NewReader(bytes.NewReader(gbkBytes), simplifiedchinese.GBK.NewDecoder())
	return io.ReadAll(reader)
}
