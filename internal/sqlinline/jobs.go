package sqlinline

const QInsertJob = `--sql 85124225-48ce-4eae-b284-9c8bf0287fec
insert into generation_jobs (
    id,
    workspace_id,
    creator_id,
    board_id,
    model,
    prompt,
    input_refs,
    priority,
    cost,
    status,
    created_at,
    updated_at
)
values (
    $1::uuid,
    $2::uuid,
    $3::uuid,
    nullif($4::text, '')::uuid,
    $5::text,
    $6::text,
    coalesce($7::text[], '{}'::text[]),
    $8::int,
    $9::numeric,
    $10::text,
    now(),
    now()
)
returning created_at, updated_at;
`

// QPatchJob applies a partial update. Null arguments keep the stored value;
// an empty $8 array disables the status guard.
const QPatchJob = `--sql cbe5c4f6-bae1-4355-9bc1-fd88d8f2fe71
update generation_jobs
set status           = coalesce($2::text, status),
    provider         = coalesce($3::text, provider),
    provider_task_id = coalesce($4::text, provider_task_id),
    result_asset_id  = coalesce($5::uuid, result_asset_id),
    result_url       = coalesce($6::text, result_url),
    error_message    = coalesce($7::text, error_message),
    updated_at       = now()
where id = $1::uuid
  and (cardinality($8::text[]) = 0 or status = any($8::text[]));
`

const jobColumns = `
    id::text,
    workspace_id::text,
    creator_id::text,
    coalesce(board_id::text, ''),
    model,
    prompt,
    input_refs,
    priority,
    cost::float8,
    status,
    coalesce(provider, ''),
    coalesce(provider_task_id, ''),
    coalesce(result_asset_id::text, ''),
    coalesce(result_url, ''),
    coalesce(error_message, ''),
    enqueued_at,
    created_at,
    updated_at`

const QSelectJobByID = `--sql cd9285be-ab5a-4155-9a82-e385062616b1
select` + jobColumns + `
from generation_jobs
where id = $1::uuid
limit 1;
`

const QSelectJobByProviderTask = `--sql 2e38ef0d-3094-4c12-8b39-59b1cf655290
select` + jobColumns + `
from generation_jobs
where provider_task_id = $1::text
limit 1;
`

const QListJobsByWorkspace = `--sql 77e6f91c-0bbb-45b0-b1bd-395009f9d7c3
select` + jobColumns + `
from generation_jobs
where workspace_id = $1::uuid
order by created_at desc, id desc
limit $2::int;
`

const QListStaleJobs = `--sql e34e007d-8713-4477-b300-59501356411e
select` + jobColumns + `
from generation_jobs
where status = $1::text
  and updated_at < $2::timestamptz
order by updated_at asc
limit $3::int;
`

const QMarkJobsEnqueued = `--sql 5f0b8e2a-6c1d-4f37-9a4e-2d8c71b3e640
update generation_jobs
set enqueued_at = now()
where id = any($1::uuid[])
  and status = 'queued';
`

// QSettleJobSuccess flips processing -> success and inserts the result asset
// in the same statement; nothing is inserted when the job is not processing.
const QSettleJobSuccess = `--sql cdc6ce13-1816-4b56-b27a-1d7c9b189abe
with settled as (
    update generation_jobs
    set status          = 'success',
        result_asset_id = $2::uuid,
        result_url      = $5::text,
        error_message   = null,
        updated_at      = now()
    where id = $1::uuid
      and status = 'processing'
    returning id, workspace_id
),
inserted as (
    insert into generation_assets (id, job_id, workspace_id, storage_key, url, content_type, bytes, created_at)
    select $2::uuid, s.id, s.workspace_id, $3::text, $5::text, $4::text, $6::bigint, now()
    from settled s
    returning id
)
select count(*) from inserted;
`
