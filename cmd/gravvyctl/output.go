package main

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func outputJSON(s *structpb.Struct) error {
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func field(s *structpb.Struct, key string) *structpb.Value {
	return s.GetFields()[key]
}

func items(s *structpb.Struct) []*structpb.Struct {
	var out []*structpb.Struct
	for _, v := range field(s, "items").GetListValue().GetValues() {
		out = append(out, v.GetStructValue())
	}
	return out
}

func printVideos(list *structpb.Struct) error {
	if flagJSON {
		return outputJSON(list)
	}
	for _, v := range items(list) {
		mark := " "
		if field(v, "unseen_clips_count").GetNumberValue() > 0 || field(v, "unseen_likes_count").GetNumberValue() > 0 {
			mark = "*"
		}
		fmt.Printf("%s %-24s %-32s likes=%-4.0f plays=%.0f\n",
			mark,
			field(v, "hash_key").GetStringValue(),
			field(v, "title").GetStringValue(),
			field(v, "likes_count").GetNumberValue(),
			field(v, "plays_count").GetNumberValue())
	}
	return nil
}

func structValue(fields map[string]any) (*structpb.Value, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return structpb.NewStructValue(s), nil
}
