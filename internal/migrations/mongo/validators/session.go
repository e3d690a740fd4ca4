package validators

import "go.mongodb.org/mongo-driver/bson"

var SessionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"product",
			"user",
			"policy_version",
			"cost_floor",
			"round",
			"status",
			"created_at",
			"last_activity_at",
			"expires_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"product": bson.M{
				"bsonType": "object",
				"required": []string{"type", "displayed_price", "currency"},
				"properties": bson.M{
					"type": bson.M{
						"enum": []string{"flight", "hotel", "sightseeing"},
					},
					"displayed_price": bson.M{
						"bsonType": []string{"double", "int", "long"},
						"minimum":  0,
					},
					"currency": bson.M{
						"bsonType":  "string",
						"minLength": 3,
						"maxLength": 3,
					},
				},
			},

			"cost_floor": bson.M{
				"bsonType": []string{"double", "int", "long"},
				"minimum":  0,
			},

			"round": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"status": bson.M{
				"enum": []string{"ACTIVE", "ACCEPTED", "REJECTED", "EXPIRED"},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"last_activity_at": bson.M{
				"bsonType": "date",
			},

			"expires_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
