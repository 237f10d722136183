package elasticsearch

import "fmt"

// vectorIndexMapping 向量索引 mapping，dense_vector 开启 cosine 相似度索引
func vectorIndexMapping(dims int) string {
	return fmt.Sprintf(`{
  "mappings": {
    "properties": {
      "segment_id": {"type": "keyword"},
      "vector_type": {"type": "keyword"},
      "text": {"type": "text", "analyzer": "standard"},
      "category_id": {"type": "keyword"},
      "vector": {
        "type": "dense_vector",
        "dims": %d,
        "index": true,
        "similarity": "cosine"
      }
    }
  }
}`, dims)
}

// knowledgeIndexMapping 知识条目索引 mapping，文档 id 即 segment_id
const knowledgeIndexMapping = `{
  "mappings": {
    "properties": {
      "segment_id": {"type": "keyword"},
      "source": {"type": "keyword"},
      "knowledge_type": {"type": "keyword"},
      "question": {"type": "text", "analyzer": "standard"},
      "similar_questions": {"type": "text", "analyzer": "standard"},
      "answers": {
        "type": "nested",
        "properties": {
          "content": {"type": "text", "analyzer": "standard"},
          "channels": {"type": "keyword"}
        }
      },
      "weight": {"type": "integer"},
      "document_id": {"type": "keyword"},
      "keywords": {"type": "keyword"},
      "category_id": {"type": "keyword"}
    }
  }
}`

// bindingIndexMapping 库绑定索引 mapping，文档 id 即 library_id
const bindingIndexMapping = `{
  "mappings": {
    "properties": {
      "library_id": {"type": "keyword"},
      "category_id": {"type": "keyword"}
    },
    "dynamic": "strict"
  }
}`
