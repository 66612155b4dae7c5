package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html>
<html><head><title>中文课 第一集 - 视频</title></head>
<body><article><h1>中文课 第一集</h1>
<p><ruby>中<rp>(</rp><rt>zhōng</rt><rp>)</rp></ruby><ruby>文<rt>wén</rt></ruby>是一门很有意思的语言。我们今天学习怎么用中文打招呼，也学习一些常用的句子。</p>
<p>这一集的视频很短，但是内容很丰富。请大家认真听，跟着老师一起读。</p>
</article></body></html>`

func TestDescribeRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" || r.Header.Get("User-Agent") == "Go-http-client/1.1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	d := &Describer{Client: srv.Client()}
	info, err := d.Describe(context.Background(), "  "+srv.URL+"/watch?v=1 ")
	require.NoError(t, err)
	assert.Equal(t, Remote, info.Kind)
	assert.Equal(t, srv.URL+"/watch?v=1", info.Source)
	assert.Contains(t, info.Title, "中文课")

	// Title lookup failures fall back to the URL.
	info, err = d.Describe(context.Background(), srv.URL+"/gone")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/gone", info.Title)
}

func TestDescribeLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "第一课.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	d := &Describer{}
	info, err := d.Describe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, Local, info.Kind)
	assert.Equal(t, "第一课.mp4", info.Title)
	assert.True(t, filepath.IsAbs(info.Source))

	_, err = d.Describe(context.Background(), filepath.Join(dir, "missing.mp4"))
	assert.Error(t, err)
	_, err = d.Describe(context.Background(), dir)
	assert.Error(t, err)
	_, err = d.Describe(context.Background(), " ")
	assert.Error(t, err)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://www.youtube.com/watch?v=abc"))
	assert.True(t, IsRemote("http://example.com/v.mp4"))
	assert.False(t, IsRemote("/videos/a.mp4"))
	assert.False(t, IsRemote("ftp://example.com/a.mp4"))
	assert.False(t, IsRemote("C:\\videos\\a.mp4"))
}

func TestSanitizeRuby(t *testing.T) {
	in := []byte(`<ruby>中<rp>(</rp><RT class="x">zhōng</RT><rp>)</rp></ruby>文`)
	assert.Equal(t, `<ruby>中</ruby>文`, string(SanitizeRuby(in)))
}
