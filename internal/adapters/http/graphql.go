package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/urlcodec"
)

// filtersArg takes filters in the map page query string form, e.g.
// "minPrice=100000&category=HOUSE&category=APARTMENT".
var filtersArg = &graphql.ArgumentConfig{
	Type:         graphql.String,
	DefaultValue: "",
	Description:  "Filters as a URL query string",
}

func argFilters(p graphql.ResolveParams) domain.FilterSet {
	raw, _ := p.Args["filters"].(string)
	return urlcodec.Decode(raw).Filters
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	listingPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ListingPoint",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"latitude":         &graphql.Field{Type: graphql.Float},
			"longitude":        &graphql.Field{Type: graphql.Float},
			"price":            &graphql.Field{Type: graphql.Float},
			"category":         &graphql.Field{Type: graphql.String},
			"transaction_type": &graphql.Field{Type: graphql.String},
		},
	})

	clusterFeatureType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ClusterFeature",
		Fields: graphql.Fields{
			"latitude":    &graphql.Field{Type: graphql.Float},
			"longitude":   &graphql.Field{Type: graphql.Float},
			"cluster":     &graphql.Field{Type: graphql.Boolean},
			"cluster_id":  &graphql.Field{Type: graphql.Int},
			"point_count": &graphql.Field{Type: graphql.Int},
			"point":       &graphql.Field{Type: listingPointType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"clusters": &graphql.Field{
				Type:        graphql.NewList(clusterFeatureType),
				Description: "Clusters and listings inside a bounding box at an integer zoom",
				Args: graphql.FieldConfigArgument{
					"ne_lat":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"ne_lng":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"sw_lat":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"sw_lng":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"zoom":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"filters": filtersArg,
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					box := domain.BoundingBox{
						North: p.Args["ne_lat"].(float64),
						East:  p.Args["ne_lng"].(float64),
						South: p.Args["sw_lat"].(float64),
						West:  p.Args["sw_lng"].(float64),
					}
					if !box.Valid() {
						return []domain.ClusterFeature{}, nil
					}
					return deps.Clusters.Query(p.Context, argFilters(p), box, p.Args["zoom"].(int))
				},
			},
			"expansionZoom": &graphql.Field{
				Type:        graphql.Int,
				Description: "Zoom at which a cluster splits into its children",
				Args: graphql.FieldConfigArgument{
					"cluster_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"filters":    filtersArg,
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Clusters.ExpansionZoom(p.Context, argFilters(p), p.Args["cluster_id"].(int)), nil
				},
			},
			"leaves": &graphql.Field{
				Type:        graphql.NewList(listingPointType),
				Description: "Page of the listings inside a cluster",
				Args: graphql.FieldConfigArgument{
					"cluster_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"limit":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 10},
					"offset":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"filters":    filtersArg,
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Clusters.Leaves(p.Context, argFilters(p),
						p.Args["cluster_id"].(int), p.Args["limit"].(int), p.Args["offset"].(int)), nil
				},
			},
			"canonicalQuery": &graphql.Field{
				Type:        graphql.String,
				Description: "Canonical form of a map page query string",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return urlcodec.Canonical(p.Args["query"].(string)), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
