package cloud

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/vantage-deploy/vantage/internal/provisioning"
)

// The gateway only accepts Swagger 2.0 documents. Backends are the
// deployment's functions; every route demands the device API key. When the
// config names browser origins, the document records them and exposes
// unsecured OPTIONS preflight routes on every path.
const openAPITemplate = `swagger: "2.0"
info:
  title: {{ .Prefix }}-api
  description: Device-facing API for the {{ .Prefix }} deployment
  version: "1.0.0"
schemes:
  - https
produces:
  - application/json
{{- if .CORSOrigins }}
x-cors-allowed-origins:
{{- range .CORSOrigins }}
  - {{ . }}
{{- end }}
{{- end }}
securityDefinitions:
  api_key:
    type: apiKey
    name: x-api-key
    in: header
paths:
  /device-auth/initiate:
    post:
      operationId: deviceAuthInitiate
      security:
        - api_key: []
      x-google-backend:
        address: https://{{ .Region }}-{{ .ProjectID }}.cloudfunctions.net/{{ .Prefix }}-device-auth
      responses:
        "200":
          description: Custom token for the authenticated device
{{- if .CORSOrigins }}
    options:
      operationId: deviceAuthInitiateCors
      x-google-backend:
        address: https://{{ .Region }}-{{ .ProjectID }}.cloudfunctions.net/{{ .Prefix }}-device-auth
      responses:
        "200":
          description: CORS preflight
{{- end }}
  /token/vend:
    post:
      operationId: tokenVend
      security:
        - api_key: []
      x-google-backend:
        address: https://{{ .Region }}-{{ .ProjectID }}.cloudfunctions.net/{{ .Prefix }}-token-vendor
      responses:
        "200":
          description: Short-lived scoped access token
{{- if .CORSOrigins }}
    options:
      operationId: tokenVendCors
      x-google-backend:
        address: https://{{ .Region }}-{{ .ProjectID }}.cloudfunctions.net/{{ .Prefix }}-token-vendor
      responses:
        "200":
          description: CORS preflight
{{- end }}
`

var openAPIDoc = template.Must(template.New("openapi").Parse(openAPITemplate))

func renderOpenAPI(pc *provisioning.Context) ([]byte, error) {
	var buf bytes.Buffer
	err := openAPIDoc.Execute(&buf, struct {
		Prefix, ProjectID, Region string
		CORSOrigins               []string
	}{
		Prefix:      pc.Config.NamePrefix,
		ProjectID:   pc.Config.ProjectID,
		Region:      pc.Config.Region,
		CORSOrigins: pc.Config.CORSOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render gateway spec: %w", err)
	}
	return buf.Bytes(), nil
}
