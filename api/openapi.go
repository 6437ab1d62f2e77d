package api

import "encoding/json"

type object = map[string]any

func response(description string) object {
	return object{"description": description}
}

var openAPIDocument = mustMarshal(object{
	"openapi": "3.0.0",
	"info": object{
		"title":       "Nokia 7360 OLT Optics API",
		"description": "Connects to a Nokia 7360 ISAM FX OLT over SSH or Telnet and retrieves ONT optics (RX dBm).",
		"version":     "0.1.0",
	},
	"components": object{
		"securitySchemes": object{
			"bearerAuth": object{"type": "http", "scheme": "bearer"},
		},
	},
	"paths": object{
		"/health": object{
			"get": object{
				"summary":     "Health check",
				"description": "Check that the service is up and responding.",
				"responses":   object{"200": response("Service is healthy")},
			},
		},
		"/connect": object{
			"post": object{
				"summary":     "Test OLT connection",
				"description": "Test connectivity to the OLT using supplied or default credentials. When successful, credentials are cached in memory for subsequent /optics calls.",
				"security":    []object{{"bearerAuth": []string{}}},
				"requestBody": object{
					"required": false,
					"content": object{
						"application/json": object{
							"schema": object{
								"type": "object",
								"properties": object{
									"host":     object{"type": "string"},
									"port":     object{"type": "integer", "minimum": 1, "maximum": 65535},
									"username": object{"type": "string"},
									"password": object{"type": "string", "format": "password"},
								},
							},
						},
					},
				},
				"responses": object{
					"200": response("Connection ok"),
					"400": response("Validation error"),
					"401": response("Unauthorized"),
					"502": response("OLT connection failure"),
					"504": response("OLT timed out"),
				},
			},
		},
		"/optics": object{
			"get": object{
				"summary":     "Get ONT optics",
				"description": "Execute 'show equipment ont optics ont-id <ontPath>' on the OLT and parse the RX dBm value for the given ONT.",
				"security":    []object{{"bearerAuth": []string{}}},
				"parameters": []object{{
					"name":        "ont",
					"in":          "query",
					"description": "ONT path in the form shelf/slot/pon/ont/x (e.g. 1/1/3/2/1).",
					"required":    true,
					"schema":      object{"type": "string", "pattern": `^\d+/\d+/\d+/\d+/\d+$`},
				}},
				"responses": object{
					"200": response("Optics data returned"),
					"400": response("Validation error"),
					"401": response("Unauthorized"),
					"502": response("OLT connection failure"),
					"504": response("OLT timed out"),
				},
			},
		},
	},
})

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
