package sqlinline

const QSelectIntegrationToken = `--sql 6e6455f1-2ac7-4039-b30b-4b64387b83d5
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 810cb26e-90fd-4045-87df-95c1908800bd
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
