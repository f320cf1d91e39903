package fetch

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/pkg/jina"
)

// JinaRenderer adapts the Jina reader client to the rendered transport. The
// reader executes the page remotely, so request headers are not forwarded.
type JinaRenderer struct {
	client jina.Client
}

// NewJinaRenderer wraps a Jina client as a Renderer.
func NewJinaRenderer(client jina.Client) *JinaRenderer {
	return &JinaRenderer{client: client}
}

func (r *JinaRenderer) Render(ctx context.Context, rawURL string, _ map[string]string) (int, http.Header, []byte, error) {
	resp, err := r.client.Read(ctx, rawURL, jina.WithReturnFormat("html"))
	if err != nil {
		return 0, nil, nil, eris.Wrap(err, "fetch: jina render")
	}
	header := http.Header{}
	header.Set("Content-Type", "text/html; charset=utf-8")
	return http.StatusOK, header, []byte(resp.Data.Content), nil
}
