package bank

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"
)

// GraphQLSchema builds a read-only schema exposing balance(username) and
// history(username) over ledger. No mutations: all state changes go through
// the 2PC surface in service.go.
func GraphQLSchema(ledger *Ledger) (graphql.Schema, error) {
	transactionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Transaction",
		Fields: graphql.Fields{
			"txid":              &graphql.Field{Type: graphql.String},
			"counterparty_bank": &graphql.Field{Type: graphql.String},
			"counterparty_user": &graphql.Field{Type: graphql.String},
			"direction":         &graphql.Field{Type: graphql.String},
			"amount":            &graphql.Field{Type: graphql.Int},
			"status":            &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"balance": &graphql.Field{
				Type: graphql.Int,
				Args: graphql.FieldConfigArgument{
					"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					username, _ := p.Args["username"].(string)
					return ledger.Balance(username)
				},
			},
			"history": &graphql.Field{
				Type: graphql.NewList(transactionType),
				Args: graphql.FieldConfigArgument{
					"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					username, _ := p.Args["username"].(string)
					return ledger.History(username)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

// graphQLHandler serves POST /graphql requests against schema.
type graphQLHandler struct {
	schema graphql.Schema
}

// NewGraphQLHandler creates an http.Handler for ledger's read-only GraphQL API.
func NewGraphQLHandler(ledger *Ledger) (http.Handler, error) {
	schema, err := GraphQLSchema(ledger)
	if err != nil {
		return nil, err
	}
	return &graphQLHandler{schema: schema}, nil
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

func (h *graphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "GraphQL only accepts POST requests", http.StatusMethodNotAllowed)
		return
	}

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		Context:        r.Context(),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
