package validators

import "go.mongodb.org/mongo-driver/bson"

var RoundValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "session_id", "index", "decision", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":           bson.M{"bsonType": "string", "minLength": 26, "maxLength": 26},
			"session_id":    bson.M{"bsonType": "string"},
			"index":         bson.M{"bsonType": []string{"int", "long"}, "minimum": 1},
			"user_offer":    bson.M{"bsonType": []string{"double", "null"}},
			"counter_price": bson.M{"bsonType": []string{"double", "null"}},
			"decision":      bson.M{"enum": []string{"ACCEPT", "COUNTER", "REJECT"}},
			"accept_prob":   bson.M{"bsonType": "double", "minimum": 0, "maximum": 1},
			"created_at":    bson.M{"bsonType": "date"},
		},
	},
}
