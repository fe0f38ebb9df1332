package graph

import "topicref/domain/core/entities"

// Timestamps are stored as epoch milliseconds.

const stmtPing = `RETURN 1 AS ok`

const (
	stmtListTopics = `MATCH (t:Topic) RETURN t.name AS name ORDER BY name SKIP $skip LIMIT $limit`

	stmtTopicExists = `MATCH (t:Topic {name: $name}) RETURN t.name AS name`

	stmtCreateTopic = `CREATE (t:Topic {name: $name, created_at: $created_at})`

	stmtDeleteTopic = `MATCH (t:Topic {name: $name})
OPTIONAL MATCH (t)-[:REF]->(r:Reference)
DETACH DELETE t, r`

	stmtLinkSubTopic = `MATCH (p:Topic {name: $parent})
MATCH (c:Topic {name: $child})
MERGE (p)-[:SUBTOPIC]->(c)`

	stmtListSubTopics = `MATCH (:Topic {name: $name})-[:SUBTOPIC]->(c:Topic) RETURN c.name AS name ORDER BY name`
)

// createReferenceStatements holds one CREATE per kind so every reference node
// carries both the Reference label and its kind label.
var createReferenceStatements = map[entities.Kind]string{
	entities.KindVerse:    `CREATE (r:Reference:VerseRange) SET r = $props`,
	entities.KindCitation: `CREATE (r:Reference:Citation) SET r = $props`,
	entities.KindBook:     `CREATE (r:Reference:BookReference) SET r = $props`,
}

const (
	stmtLinkReference = `MATCH (t:Topic {name: $topic})
MATCH (r:Reference {id: $id})
CREATE (t)-[:REF]->(r)
RETURN r.id AS id`

	stmtListReferences = `MATCH (t:Topic {name: $name})-[:REF]->(r:Reference)
RETURN properties(r) AS ref
ORDER BY r.created_at, r.id`

	stmtListVerseReferences = `MATCH (t:Topic {name: $name})-[:REF]->(r:VerseRange)
RETURN properties(r) AS ref
ORDER BY r.chapter, r.init_verse, r.final_verse, r.id
SKIP $skip LIMIT $limit`

	stmtMatchContainingVerses = `MATCH (r:VerseRange)
WHERE r.chapter = $chapter AND r.init_verse <= $init_verse AND r.final_verse >= $final_verse
RETURN r.id AS id
ORDER BY r.id`

	stmtOwningTopics = `MATCH (t:Topic)-[:REF]->(r:Reference {id: $id}) RETURN t.name AS name ORDER BY name`
)

const (
	stmtSessionExists = `MATCH (s:Session {key: $key}) RETURN s.key AS key`

	stmtCreateSession = `CREATE (s:Session) SET s = $props`

	stmtGetSession = `MATCH (s:Session {key: $key}) RETURN properties(s) AS session`

	// Null values in $props remove the property, so a replaced token leaves
	// nothing of its predecessor behind.
	stmtUpdateSession = `MATCH (s:Session {key: $key}) SET s += $props RETURN properties(s) AS session`

	stmtDeleteSession = `MATCH (s:Session {key: $key}) DETACH DELETE s RETURN count(*) AS removed`

	stmtPurgeSessions = `MATCH (s:Session) WHERE s.created_at < $cutoff DETACH DELETE s RETURN count(*) AS removed`
)

// schemaStatements are idempotent and run one per transaction.
var schemaStatements = []string{
	`CREATE CONSTRAINT topic_name IF NOT EXISTS FOR (t:Topic) REQUIRE t.name IS UNIQUE`,
	`CREATE CONSTRAINT reference_id IF NOT EXISTS FOR (r:Reference) REQUIRE r.id IS UNIQUE`,
	`CREATE CONSTRAINT session_key IF NOT EXISTS FOR (s:Session) REQUIRE s.key IS UNIQUE`,
	`CREATE INDEX verse_range_chapter IF NOT EXISTS FOR (r:VerseRange) ON (r.chapter)`,
}
