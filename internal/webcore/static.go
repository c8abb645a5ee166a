package webcore

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucidwire/govy/internal/config"
	"github.com/lucidwire/govy/internal/netconn"
	"github.com/lucidwire/govy/internal/proxycore"
)

// serveStatic resolves path under cfg.StaticServerDir and queues the file's
// contents with a guessed Content-Type, or a 404 if it escapes the root or
// doesn't exist. mime.TypeByExtension is stdlib: no third-party
// content-type table appears anywhere in the retrieval pack, so there is
// nothing to ground this on beyond the standard library.
func serveStatic(cfg *config.Config, path string, client *netconn.Conn) error {
	clean := filepath.Clean("/" + path)
	full := filepath.Join(cfg.StaticServerDir, clean)
	if !strings.HasPrefix(full, filepath.Clean(cfg.StaticServerDir)+string(filepath.Separator)) {
		return client.Queue(proxycore.NotFound(cfg.Version))
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return client.Queue(proxycore.NotFound(cfg.Version))
	}

	ctype := mime.TypeByExtension(filepath.Ext(full))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	header := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nServer: %s\r\nContent-Type: %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		cfg.Version, ctype, len(data),
	)
	if err := client.Queue([]byte(header)); err != nil {
		return err
	}
	return client.Queue(data)
}
