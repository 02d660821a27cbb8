// Package openapi serves the OpenAPI 3.1 spec and Swagger UI routes.
package openapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/labstack/echo/v4"
)

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>pricewatch API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/swagger/swagger.json",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: "BaseLayout",
    });
  </script>
</body>
</html>`

// RegisterRoutes adds Swagger UI and spec endpoints to the Echo instance.
// The spec is rendered from the live Huma registry, so it always matches
// the registered operations.
func RegisterRoutes(e *echo.Echo, api huma.API) {
	jsonSpec := sync.OnceValues(func() ([]byte, error) {
		return json.Marshal(api.OpenAPI())
	})
	yamlSpec := sync.OnceValues(func() ([]byte, error) {
		return api.OpenAPI().YAML()
	})

	e.GET("/swagger/swagger.json", serveSpec(jsonSpec, "application/json"))
	e.GET("/swagger/swagger.yaml", serveSpec(yamlSpec, "text/yaml"))
	e.GET("/swagger/index.html", serveUI)
	e.GET("/swagger", redirectToUI)
	e.GET("/swagger/", redirectToUI)
}

func serveSpec(spec func() ([]byte, error), contentType string) echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := spec()
		if err != nil {
			return c.String(http.StatusInternalServerError, "rendering spec failed")
		}
		return c.Blob(http.StatusOK, contentType, data)
	}
}

func serveUI(c echo.Context) error {
	return c.HTML(http.StatusOK, swaggerUIHTML)
}

func redirectToUI(c echo.Context) error {
	return c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
}
