package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/qanoneed/internal/blob"
	"github.com/kailas-cloud/qanoneed/internal/repository/flatindex"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env", "test"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "qanoneed "), out)
}

func TestAskCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/chat", "/roadmap":
			var req struct{ Question string }
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(map[string]string{"answer": r.URL.Path + ": " + req.Question})
		case "/chat/stream":
			w.Header().Set("Content-Type", "text/event-stream")
			if r.URL.Query().Get("question") == "فشل" {
				fmt.Fprint(w, "event: error\ndata: عذراً\n\n")
				return
			}
			fmt.Fprint(w, "data: سطر\ndata: ثان\n\n")
		}
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{"chat joins args", []string{"--mode", "chat", "ما", "الحكم؟"}, "/chat: ما الحكم؟\n", ""},
		{"roadmap", []string{"--mode", "roadmap", "كيف"}, "/roadmap: كيف\n", ""},
		{"stream", []string{"--mode", "stream", "سؤال"}, "سطر\nثان\n", ""},
		{"stream error event", []string{"--mode", "stream", "فشل"}, "", "عذراً"},
		{"bad mode", []string{"--mode", "chant", "x"}, "", "--mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"ask", "--server", srv.URL, "--api-key", "k"}, tt.args...)
			out, err := execute(t, args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestAskCmd_RequiresQuestion(t *testing.T) {
	_, err := execute(t, "ask")
	require.Error(t, err)
}

// fakeEmbeddings answers OpenAI /embeddings with a fixed 3-dim vector per input.
func fakeEmbeddings(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{1, float32(i), 0.5}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-embed",
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, embedURL, indexPath string) string {
	t.Helper()
	cfg := fmt.Sprintf(`
generation:
  provider: openai
  providers:
    openai:
      api_key: test
embedding:
  api_key: test
  base_url: %s
  model: test-embed
retrieval:
  backend: flat
  index_path: %s
`, embedURL, indexPath)
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func TestIndexCmd_Flat(t *testing.T) {
	dir := t.TempDir()
	emb := fakeEmbeddings(t)

	source := filepath.Join(dir, "laws.jsonl")
	laws := `{"law_id": 1, "law_name": "نظام العمل", "url": "https://laws.boe.gov.sa/labor", "articles": [` +
		`{"title": "المادة الأولى", "part": "الباب الأول", "text": "يسمى هذا النظام نظام العمل."},` +
		`{"title": "المادة الثانية", "text": "` + strings.Repeat("كلمة ", 1200) + `"}]}` + "\n"
	require.NoError(t, os.WriteFile(source, []byte(laws), 0o600))

	out := filepath.Join(dir, "index.jsonl")
	cfgPath := writeConfig(t, dir, emb.URL, out)

	stdout, err := execute(t, "--config", cfgPath, "index", "--source", source, "--batch-size", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "indexed 1 laws, 2 articles")
	assert.Contains(t, stdout, out)

	idx, err := flatindex.Load(context.Background(), blob.NewRouter(nil), out)
	require.NoError(t, err)
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Greater(t, n, 2, "long article must be split into several passages")
	assert.Equal(t, 3, idx.Dim())
}

func TestIndexCmd_Validation(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "http://unused", filepath.Join(dir, "index.jsonl"))

	_, err := execute(t, "--config", cfgPath, "index")
	require.Error(t, err, "--source is required")

	_, err = execute(t, "--config", cfgPath, "index", "--source", "x.jsonl", "--backend", "sqlite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--backend")

	_, err = execute(t, "--config", cfgPath, "index", "--source", "x.jsonl", "--backend", "redis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")

	_, err = execute(t, "--config", cfgPath, "index", "--source", filepath.Join(dir, "missing.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open source")
}
