// Package docs provides the OpenAPI documentation for the prompta API.
//
// Prompta API
//
//	@title			Prompta API
//	@version		1.0
//	@description	Versioned prompt storage with projects, diffs and three-tier visibility.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/prompta
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8000
//	@BasePath	/
//
//	@schemes	http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//
//	@securityDefinitions.apikey	APIKeyAuth
//	@in							header
//	@name						X-API-Key
package docs

//go:generate swag init -g ../cmd/prompta/serve.go -o ./swagger --parseDependency --parseInternal
