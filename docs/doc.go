// Package docs provides generated OpenAPI documentation.
//
// epubaudio API
//
//	@title			epubaudio API
//	@version		1.0
//	@description	EPUB text extraction and text to speech conversion backend.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/epubaudio
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http
package docs

//go:generate swag init -g ../cmd/epubaudio/serve.go -o ./swagger --parseDependency --parseInternal
