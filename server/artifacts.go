package server

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/edgellm/edgellm/api"
)

// base64PayloadKeys are result fields whose string values are treated as
// inline image payloads.
var base64PayloadKeys = map[string]bool{
	"data":         true,
	"b64":          true,
	"b64_json":     true,
	"base64":       true,
	"image_base64": true,
}

// artifactKey is the dedup key: the URL when present, otherwise a stable hash
// of the base64 payload. Empty when neither exists.
func artifactKey(a api.Artifact) string {
	if a.URL != "" {
		return a.URL
	}
	if a.Base64 != "" {
		sum := sha256.Sum256([]byte(a.Base64))
		return hex.EncodeToString(sum[:])
	}
	return ""
}

// collectImageArtifacts walks a tool result and gathers inline image
// payloads: MCP-style content entries ({"type":"image","data":...}) and
// fields with a known payload key whose decoded bytes sniff as an image.
func collectImageArtifacts(v any) []api.Artifact {
	var out []api.Artifact
	walkImages(v, &out)
	return out
}

func walkImages(v any, out *[]api.Artifact) {
	switch node := v.(type) {
	case map[string]any:
		if t, _ := node["type"].(string); t == "image" {
			if data, _ := node["data"].(string); data != "" {
				a := api.Artifact{Kind: "image", Base64: data}
				if mime, _ := node["mimeType"].(string); mime != "" {
					a.MimeType = mime
				} else {
					a.MimeType = sniffBase64(data)
				}
				*out = append(*out, a)
				return
			}
		}
		for key, child := range node {
			if s, ok := child.(string); ok && base64PayloadKeys[key] {
				if mime := sniffBase64(s); strings.HasPrefix(mime, "image/") {
					*out = append(*out, api.Artifact{Kind: "image", MimeType: mime, Base64: s})
				}
				continue
			}
			walkImages(child, out)
		}
	case []any:
		for _, child := range node {
			walkImages(child, out)
		}
	}
}

// sniffBase64 decodes enough of a base64 string to identify its media type.
func sniffBase64(s string) string {
	if len(s) < 16 {
		return ""
	}
	head := strings.TrimRight(s, "=")
	if len(head) > 512 {
		head = head[:512]
	}
	head = head[:len(head)-len(head)%4]
	raw, err := base64.RawStdEncoding.DecodeString(head)
	if err != nil || len(raw) == 0 {
		return ""
	}
	return mimetype.Detect(raw).String()
}

// stripImagePayloads returns a copy of v with inline image payloads replaced
// by a short marker so raw bytes never reach the next decode step.
func stripImagePayloads(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		isImage, _ := node["type"].(string)
		for key, child := range node {
			if s, ok := child.(string); ok {
				if base64PayloadKeys[key] && (isImage == "image" || strings.HasPrefix(sniffBase64(s), "image/")) {
					out[key] = "[image payload omitted]"
					continue
				}
			}
			out[key] = stripImagePayloads(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = stripImagePayloads(child)
		}
		return out
	default:
		return v
	}
}

// truncateLargeStrings returns a copy of v with every string longer than max
// bytes cut down and suffixed with an ellipsis marker.
func truncateLargeStrings(v any, max int) any {
	if max <= 0 {
		return v
	}
	switch node := v.(type) {
	case string:
		if len(node) <= max {
			return node
		}
		return node[:max] + "...(truncated,len=" + strconv.Itoa(len(node)) + ")"
	case map[string]any:
		out := make(map[string]any, len(node))
		for key, child := range node {
			out[key] = truncateLargeStrings(child, max)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = truncateLargeStrings(child, max)
		}
		return out
	default:
		return v
	}
}

// sanitizeUTF8 replaces malformed sequences so JSON encoding never fails
// mid-stream.
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}
