package http

import (
	"context"
	"log/slog"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>PropMap API - Swagger UI</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
  <style>html{box-sizing:border-box}*,*::before,*::after{box-sizing:inherit}body{margin:0;background:#fafafa}</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/docs/openapi.json',
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: 'BaseLayout',
    });
  </script>
</body>
</html>`

// DefaultDocsPath is resolved against the working directory of the api binary.
const DefaultDocsPath = "api/openapi.yaml"

type apiDocs struct {
	yaml []byte
	json []byte
}

// loadDocs reads and validates the OpenAPI document. An invalid document is
// still served; the error is only logged.
func loadDocs(path string, log *slog.Logger) *apiDocs {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("openapi document not found", "path", path, "error", err)
		return nil
	}
	docs := &apiDocs{yaml: data}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		log.Warn("openapi document does not parse", "path", path, "error", err)
		return docs
	}
	if err := doc.Validate(context.Background()); err != nil {
		log.Warn("openapi document is invalid", "path", path, "error", err)
	}
	if docs.json, err = doc.MarshalJSON(); err != nil {
		log.Warn("openapi document json", "error", err)
	}
	return docs
}

// SetupDocs registers Swagger UI at /docs and the OpenAPI document at
// /docs/openapi.yaml and /docs/openapi.json.
func SetupDocs(app *fiber.App, path string, log *slog.Logger) {
	if path == "" {
		path = DefaultDocsPath
	}
	docs := loadDocs(path, log)

	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/html; charset=utf-8")
		return c.SendString(swaggerUIHTML)
	})

	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		if docs == nil {
			return errNotFound(c, "openapi.yaml not found")
		}
		c.Set("Content-Type", "application/yaml")
		return c.Send(docs.yaml)
	})

	app.Get("/docs/openapi.json", func(c *fiber.Ctx) error {
		if docs == nil || docs.json == nil {
			return errNotFound(c, "openapi.json not available")
		}
		c.Set("Content-Type", fiber.MIMEApplicationJSON)
		return c.Send(docs.json)
	})
}
